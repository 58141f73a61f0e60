package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cluster"
)

// HTTP sends calls over HTTP, either straight to the peer or through a
// sidecar relay that reads the Destination header.
type HTTP struct {
	client *http.Client
	log    logrus.FieldLogger
	relay  string
}

type Option func(*HTTP)

// WithRelay routes every call through the relay listening on addr.
func WithRelay(addr string) Option {
	return func(t *HTTP) { t.relay = addr }
}

func WithClient(c *http.Client) Option {
	return func(t *HTTP) { t.client = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(t *HTTP) { t.log = l }
}

func NewHTTP(opts ...Option) *HTTP {
	t := &HTTP{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithField("component", "transport")
	return t
}

func (t *HTTP) Post(ctx context.Context, addr, path string, body, out any) error {
	return t.do(ctx, http.MethodPost, addr, path, body, out)
}

func (t *HTTP) Get(ctx context.Context, addr, path string, out any) error {
	return t.do(ctx, http.MethodGet, addr, path, nil, out)
}

func (t *HTTP) do(ctx context.Context, method, addr, path string, body, out any) error {
	id := uuid.NewString()
	header := http.Header{}
	header.Set(cluster.RequestIDHeader, id)

	target := baseURL(addr) + path
	if t.relay != "" {
		header.Set(cluster.DestinationHeader, strings.TrimPrefix(addr, "http://"))
		target = baseURL(t.relay) + path
	}

	t.log.WithFields(logrus.Fields{"request_id": id, "method": method, "to": addr + path}).Debug("sending")

	if err := cluster.DoJSON(ctx, t.client, method, target, header, body, out); err != nil {
		return fmt.Errorf("%s %s%s: %w", method, addr, path, err)
	}
	return nil
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + addr
}
