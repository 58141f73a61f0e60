package paxos

import (
	"context"
	"fmt"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/transport"
)

// AcceptorLookup finds the active acceptors.
type AcceptorLookup interface {
	Acceptors(ctx context.Context) ([]cluster.Peer, error)
}

// LearnerLookup finds the learner of the current topology.
type LearnerLookup interface {
	Learner(ctx context.Context) (cluster.Peer, error)
}

// PeerLookup resolves a node id to its address.
type PeerLookup interface {
	Peer(ctx context.Context, id int64) (cluster.Peer, error)
}

// postLeader sends body to path on the leader currently known by self.
func postLeader(ctx context.Context, self *node.Identity, peers PeerLookup, tr transport.Transport, path string, body any) error {
	id, err := self.RequireLeader()
	if err != nil {
		return err
	}
	leader, err := peers.Peer(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve leader %d: %w", id, err)
	}
	return tr.Post(ctx, leader.Addr(), path, body, nil)
}
