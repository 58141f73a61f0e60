package election

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/fanout"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/registry"
	"github.com/dreamware/primus/internal/transport"
)

// Bounds is an inclusive range a randomized delay is drawn from.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

var (
	DefaultElectionDelay     = Bounds{Min: 5 * time.Second, Max: 15 * time.Second}
	DefaultWatchInterval     = Bounds{Min: 40 * time.Second, Max: 60 * time.Second}
	DefaultDelegationTimeout = 30 * time.Second
)

// Coordinator runs the Bully election for one node.
type Coordinator struct {
	self *node.Identity
	gw   registry.Gateway
	tr   transport.Transport
	log  logrus.FieldLogger

	after      func(time.Duration) <-chan time.Time
	int63n     func(n int64) int64
	onLeader   func(ctx context.Context)
	onFollower func()

	ctx    context.Context
	cancel context.CancelFunc

	delay      Bounds
	watch      Bounds
	delegation time.Duration

	mu      sync.Mutex
	wg      sync.WaitGroup
	epoch   uint64
	stopped bool
}

type Option func(*Coordinator)

// WithTimer replaces time.After.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Coordinator) { c.after = after }
}

// WithRand replaces the random source used for delays.
func WithRand(int63n func(n int64) int64) Option {
	return func(c *Coordinator) { c.int63n = int63n }
}

func WithElectionDelay(b Bounds) Option {
	return func(c *Coordinator) { c.delay = b }
}

func WithWatchInterval(b Bounds) Option {
	return func(c *Coordinator) { c.watch = b }
}

func WithDelegationTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.delegation = d }
}

// WithLeaderHooks sets the callbacks run when this node takes or loses the
// leadership. onLeader receives a context that lives until Stop.
func WithLeaderHooks(onLeader func(ctx context.Context), onFollower func()) Option {
	return func(c *Coordinator) {
		c.onLeader = onLeader
		c.onFollower = onFollower
	}
}

func NewCoordinator(self *node.Identity, gw registry.Gateway, tr transport.Transport, log logrus.FieldLogger, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		self:       self,
		gw:         gw,
		tr:         tr,
		log:        log.WithField("component", "election"),
		after:      time.After,
		int63n:     rand.Int63n,
		onLeader:   func(context.Context) {},
		onFollower: func() {},
		ctx:        ctx,
		cancel:     cancel,
		delay:      DefaultElectionDelay,
		watch:      DefaultWatchInterval,
		delegation: DefaultDelegationTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Readiness is served on the election readiness route.
func (c *Coordinator) Readiness() cluster.ElectionReadiness {
	return c.self.Readiness()
}

// StartElection runs one election round. It returns at once when an
// election is already running on this node.
func (c *Coordinator) StartElection(ctx context.Context) error {
	if !c.self.TryBeginElection() {
		c.log.Debug("election already in progress")
		return nil
	}
	log := c.log.WithField("node", c.self.ID())

	// this node is part of its own candidate set
	if c.self.IsLeader() {
		log.Debug("already leading, election skipped")
		c.self.EndElection()
		return nil
	}

	others, err := c.others(ctx)
	if err != nil {
		c.self.EndElection()
		return err
	}
	infos := c.collect(ctx, others)

	if leaderID, ok := reportedLeader(infos); ok {
		log.WithField("leader", leaderID).Info("adopting existing leader")
		c.adopt(leaderID)
		return nil
	}

	var higher []peerInfo
	for _, info := range infos {
		if info.info.NodeID > c.self.ID() {
			higher = append(higher, info)
		}
	}

	if len(higher) == 0 {
		c.becomeLeader(ctx, others)
		return nil
	}

	if !slices.ContainsFunc(higher, func(p peerInfo) bool { return p.info.IsElectionReady }) {
		log.WithField("higher", len(higher)).Info("no higher node ready, election dropped")
		c.self.EndElection()
		return nil
	}

	body := cluster.ElectionInvokeRequest{InvokeNodeID: c.self.ID()}
	results := fanout.Run(ctx, higher, func(ctx context.Context, h peerInfo) error {
		return c.tr.Post(ctx, h.peer.Addr(), cluster.PathElection, body, nil)
	})
	for _, r := range fanout.Failed(results) {
		log.WithField("peer", r.Target.peer.NodeID).WithError(r.Err).Warn("election invoke failed")
	}
	log.WithField("higher", len(higher)).Info("election delegated")

	c.armDelegation()
	return nil
}

type peerInfo struct {
	peer cluster.Peer
	info cluster.NodeInformation
}

// others lists the active peers except this node.
func (c *Coordinator) others(ctx context.Context) ([]cluster.Peer, error) {
	peers, err := c.gw.ListActiveInstances(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(peers, func(p cluster.Peer) bool { return p.NodeID == c.self.ID() }), nil
}

func reportedLeader(infos []peerInfo) (int64, bool) {
	i := slices.IndexFunc(infos, func(p peerInfo) bool { return p.info.IsLeader })
	if i < 0 {
		return 0, false
	}
	return infos[i].info.NodeID, true
}

// collect asks every peer for its state. Peers that do not answer are left
// out of the candidate set.
func (c *Coordinator) collect(ctx context.Context, peers []cluster.Peer) []peerInfo {
	infos := make([]cluster.NodeInformation, len(peers))
	idx := make([]int, len(peers))
	for i := range idx {
		idx[i] = i
	}

	results := fanout.Run(ctx, idx, func(ctx context.Context, i int) error {
		return c.tr.Get(ctx, peers[i].Addr(), cluster.PathInformation, &infos[i])
	})

	out := make([]peerInfo, 0, len(peers))
	for _, r := range results {
		if r.Err != nil {
			c.log.WithField("peer", peers[r.Target].NodeID).WithError(r.Err).Debug("peer left out of election")
			continue
		}
		info := infos[r.Target]
		if info.NodeID == 0 {
			info.NodeID = peers[r.Target].NodeID
		}
		out = append(out, peerInfo{peer: peers[r.Target], info: info})
	}
	return out
}

func (c *Coordinator) adopt(leaderID int64) {
	c.self.SetLeader(leaderID)
	if leaderID != c.self.ID() {
		c.onFollower()
	}
}

func (c *Coordinator) becomeLeader(ctx context.Context, others []cluster.Peer) {
	c.self.SetLeader(c.self.ID())
	log := c.log.WithField("node", c.self.ID())
	log.Info("elected leader")

	body := cluster.LeaderElectedRequest{LeaderID: c.self.ID()}
	results := fanout.Run(ctx, others, func(ctx context.Context, p cluster.Peer) error {
		return c.tr.Post(ctx, p.Addr(), cluster.PathElectionCompleted, body, nil)
	})
	for _, r := range fanout.Failed(results) {
		log.WithField("peer", r.Target.NodeID).WithError(r.Err).Warn("leader announcement failed")
	}

	c.onLeader(c.ctx)
}

// armDelegation drops a delegated election that produced no leader in
// time and starts a new one.
func (c *Coordinator) armDelegation() {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	c.spawn(func(ctx context.Context) {
		if !c.sleep(ctx, c.delegation) {
			return
		}
		c.mu.Lock()
		current := c.epoch == epoch
		c.mu.Unlock()
		if !current || !c.self.ElectionOngoing() {
			return
		}

		c.log.Warn("no leader announced after delegation, retrying")
		c.self.EndElection()
		if err := c.StartElection(ctx); err != nil {
			c.log.WithError(err).Warn("election retry failed")
		}
	})
}

// HandleInvoke is called when a lower node hands its election to this one.
// The election runs in the background. A leader answers the invoker with a
// leader announcement instead.
func (c *Coordinator) HandleInvoke(invokerID int64) {
	log := c.log.WithField("invoker", invokerID)
	log.Debug("election invoked")
	c.spawn(func(ctx context.Context) {
		if c.self.IsLeader() {
			c.announceTo(ctx, invokerID)
			return
		}
		if err := c.StartElection(ctx); err != nil {
			log.WithError(err).Warn("invoked election failed")
		}
	})
}

func (c *Coordinator) announceTo(ctx context.Context, id int64) {
	log := c.log.WithField("peer", id)
	p, err := c.gw.GetInstance(ctx, id)
	if err != nil {
		log.WithError(err).Debug("cannot look up invoker")
		return
	}
	body := cluster.LeaderElectedRequest{LeaderID: c.self.ID()}
	if err := c.tr.Post(ctx, p.Addr(), cluster.PathElectionCompleted, body, nil); err != nil {
		log.WithError(err).Warn("leader announcement failed")
	}
}

// HandleLeaderElected records the announced leader.
func (c *Coordinator) HandleLeaderElected(leaderID int64) {
	c.log.WithField("leader", leaderID).Info("leader announced")
	c.adopt(leaderID)
}

// OnRegistered asks the active peers for a sitting leader and adopts it.
// Without one it starts an election after a randomized delay, unless a
// leader has been learned in the meantime.
func (c *Coordinator) OnRegistered() {
	c.spawn(func(ctx context.Context) {
		if _, ok := c.self.Leader(); ok {
			return
		}
		if c.discoverLeader(ctx) {
			return
		}

		d := c.between(c.delay)
		c.log.WithField("delay", d).Info("election scheduled")
		if !c.sleep(ctx, d) {
			return
		}
		if _, ok := c.self.Leader(); ok {
			return
		}
		if err := c.StartElection(ctx); err != nil {
			c.log.WithError(err).Warn("startup election failed")
		}
	})
}

func (c *Coordinator) discoverLeader(ctx context.Context) bool {
	others, err := c.others(ctx)
	if err != nil {
		c.log.WithError(err).Warn("cannot list peers")
		return false
	}
	leaderID, ok := reportedLeader(c.collect(ctx, others))
	if !ok {
		return false
	}
	c.log.WithField("leader", leaderID).Info("joined under existing leader")
	c.adopt(leaderID)
	return true
}

// WatchLeader polls the health of the leader at randomized intervals until
// Stop. A critical or vanished leader is forgotten and a new election
// starts; so does a node that has no leader at all.
func (c *Coordinator) WatchLeader() {
	c.spawn(func(ctx context.Context) {
		for {
			if !c.sleep(ctx, c.between(c.watch)) {
				return
			}
			c.checkLeader(ctx)
		}
	})
}

func (c *Coordinator) checkLeader(ctx context.Context) {
	leader, ok := c.self.Leader()
	if ok && leader == c.self.ID() {
		return
	}

	if ok {
		status, err := c.gw.GetInstanceHealth(ctx, leader)
		switch {
		case errors.Is(err, registry.ErrInstanceNotFound):
			c.log.WithField("leader", leader).Warn("leader deregistered")
		case err != nil:
			c.log.WithError(err).Warn("cannot check leader health")
			return
		case status != cluster.HealthCritical:
			return
		default:
			c.log.WithField("leader", leader).Warn("leader is critical")
		}
		c.self.ClearLeader()
	}

	if c.self.ElectionOngoing() {
		return
	}
	if err := c.StartElection(ctx); err != nil {
		c.log.WithError(err).Warn("election after leader loss failed")
	}
}

// Stop cancels every pending timer and waits for background work.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) spawn(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-c.after(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) between(b Bounds) time.Duration {
	if b.Max <= b.Min {
		return b.Min
	}
	return b.Min + time.Duration(c.int63n(int64(b.Max-b.Min)+1))
}
