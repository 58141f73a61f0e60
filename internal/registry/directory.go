package registry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cache"
	"github.com/dreamware/primus/internal/cluster"
)

// Directory answers role lookups from a short-lived cache in front of the
// registry. The registry metadata stays authoritative: a miss always falls
// through to it.
type Directory struct {
	gw    Gateway
	cache cache.Cache
	log   logrus.FieldLogger
	ttl   time.Duration
}

func NewDirectory(gw Gateway, c cache.Cache, ttl time.Duration, log logrus.FieldLogger) *Directory {
	return &Directory{gw: gw, cache: c, ttl: ttl, log: log.WithField("component", "directory")}
}

func roleKey(r cluster.Role) string {
	return "peers#" + string(r)
}

// Acceptors returns the active peers holding the acceptor role.
func (d *Directory) Acceptors(ctx context.Context) ([]cluster.Peer, error) {
	return d.byRole(ctx, cluster.RoleAcceptor)
}

// Proposers returns the active peers holding the proposer role, sorted by
// node id.
func (d *Directory) Proposers(ctx context.Context) ([]cluster.Peer, error) {
	return d.byRole(ctx, cluster.RoleProposer)
}

// Learner returns the single learner, or ErrLearnerUnavailable.
func (d *Directory) Learner(ctx context.Context) (cluster.Peer, error) {
	peers, err := d.byRole(ctx, cluster.RoleLearner)
	if err != nil {
		return cluster.Peer{}, err
	}
	if len(peers) == 0 {
		return cluster.Peer{}, ErrLearnerUnavailable
	}
	return peers[0], nil
}

// Peer looks a node up in the registry, bypassing the cache.
func (d *Directory) Peer(ctx context.Context, id int64) (cluster.Peer, error) {
	return d.gw.GetInstance(ctx, id)
}

// Prime stores the peers known to hold role.
func (d *Directory) Prime(role cluster.Role, peers []cluster.Peer) {
	if peers == nil {
		peers = []cluster.Peer{}
	}
	if err := cache.SetJSON(d.cache, roleKey(role), peers, d.ttl); err != nil {
		d.log.WithError(err).Warn("cannot cache role lookup")
	}
}

// Invalidate drops every cached role lookup.
func (d *Directory) Invalidate() {
	for _, r := range []cluster.Role{cluster.RoleAcceptor, cluster.RoleLearner, cluster.RoleProposer} {
		d.cache.Delete(roleKey(r))
	}
}

func (d *Directory) byRole(ctx context.Context, role cluster.Role) ([]cluster.Peer, error) {
	var peers []cluster.Peer
	if cache.GetJSON(d.cache, roleKey(role), &peers) {
		return peers, nil
	}

	active, err := d.gw.ListActiveInstances(ctx)
	if err != nil {
		return nil, err
	}

	peers = peers[:0]
	for _, p := range active {
		if p.Role == role {
			peers = append(peers, p)
		}
	}
	if len(peers) > 0 {
		d.Prime(role, peers)
	}
	return peers, nil
}
