package api

import (
	"errors"
	"net/http"

	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/paxos"
	"github.com/dreamware/primus/internal/registry"
)

// ErrNotLeader is returned on leader-only routes served by a follower.
var ErrNotLeader = errors.New("api: node is not the leader")

// statusFor maps protocol errors onto HTTP status codes. Invariant
// violations are server errors; state that does not exist yet makes the
// node unavailable for the call.
func statusFor(err error) int {
	switch {
	case errors.Is(err, paxos.ErrQuorumMismatch), errors.Is(err, paxos.ErrMixedNumbers):
		return http.StatusInternalServerError
	case errors.Is(err, ErrNotLeader),
		errors.Is(err, node.ErrNoLeader),
		errors.Is(err, paxos.ErrNoRound),
		errors.Is(err, registry.ErrLearnerUnavailable),
		errors.Is(err, registry.ErrInstanceNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, paxos.ErrInvalidProposal):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}
