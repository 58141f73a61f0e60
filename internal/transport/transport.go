// Package transport carries peer-to-peer calls. Callers address peers by
// host:port and never see how the bytes travel.
package transport

import (
	"context"
	"errors"
)

// ErrNoRoute is returned when no peer is reachable at the given address.
var ErrNoRoute = errors.New("transport: no route to peer")

// Transport sends JSON requests to peers. body and out may be nil.
type Transport interface {
	Post(ctx context.Context, addr, path string, body, out any) error
	Get(ctx context.Context, addr, path string, out any) error
}
