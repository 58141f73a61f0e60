package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/primus/internal/cache"
	"github.com/dreamware/primus/internal/cluster"
)

// countingGateway counts list calls so tests can tell hits from misses.
type countingGateway struct {
	Gateway
	lists atomic.Int32
	err   error
}

func (g *countingGateway) ListActiveInstances(ctx context.Context) ([]cluster.Peer, error) {
	g.lists.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return g.Gateway.ListActiveInstances(ctx)
}

func withRole(p cluster.Peer, r cluster.Role) cluster.Peer {
	p.Role = r
	return p
}

func seededCatalog(t *testing.T) *Catalog {
	c := NewCatalog()
	for _, p := range []cluster.Peer{
		withRole(peer(1, 9001), cluster.RoleAcceptor),
		withRole(peer(2, 9002), cluster.RoleAcceptor),
		withRole(peer(3, 9003), cluster.RoleLearner),
		withRole(peer(4, 9004), cluster.RoleProposer),
		withRole(peer(5, 9005), cluster.RoleProposer),
	} {
		require.NoError(t, c.Put(NewInstance("primus", p)))
	}
	return c
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestDirectoryCacheMissThenHit(t *testing.T) {
	gw := &countingGateway{Gateway: seededCatalog(t)}
	d := NewDirectory(gw, cache.NewMemoryCache(), 3*time.Second, quietLogger())
	ctx := context.Background()

	acceptors, err := d.Acceptors(ctx)
	require.NoError(t, err)
	assert.Len(t, acceptors, 2)
	assert.Equal(t, int32(1), gw.lists.Load())

	again, err := d.Acceptors(ctx)
	require.NoError(t, err)
	assert.Equal(t, acceptors, again)
	assert.Equal(t, int32(1), gw.lists.Load(), "second lookup is served from cache")

	proposers, err := d.Proposers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, []int64{proposers[0].NodeID, proposers[1].NodeID})

	learner, err := d.Learner(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), learner.NodeID)
}

func TestDirectoryExpiry(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	gw := &countingGateway{Gateway: seededCatalog(t)}
	d := NewDirectory(gw, cache.NewMemoryCache(cache.WithClock(clk.Now)), 3*time.Second, quietLogger())

	_, err := d.Acceptors(context.Background())
	require.NoError(t, err)
	clk.now = clk.now.Add(3 * time.Second)
	_, err = d.Acceptors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), gw.lists.Load())
}

func TestDirectoryPrimeAndInvalidate(t *testing.T) {
	gw := &countingGateway{Gateway: NewCatalog()}
	d := NewDirectory(gw, cache.NewMemoryCache(), time.Minute, quietLogger())

	d.Prime(cluster.RoleLearner, []cluster.Peer{withRole(peer(9, 9009), cluster.RoleLearner)})
	learner, err := d.Learner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), learner.NodeID)
	assert.Zero(t, gw.lists.Load())

	d.Invalidate()
	_, err = d.Learner(context.Background())
	assert.ErrorIs(t, err, ErrLearnerUnavailable)
	assert.Equal(t, int32(1), gw.lists.Load())
}

func TestDirectoryGatewayError(t *testing.T) {
	boom := errors.New("registry down")
	gw := &countingGateway{Gateway: NewCatalog(), err: boom}
	d := NewDirectory(gw, cache.NewMemoryCache(), time.Minute, quietLogger())

	_, err := d.Proposers(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = d.Learner(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDirectoryPeer(t *testing.T) {
	d := NewDirectory(seededCatalog(t), cache.NewMemoryCache(), time.Minute, quietLogger())

	p, err := d.Peer(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 9003, p.Port)

	_, err = d.Peer(context.Background(), 42)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}
