package election

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/registry"
	"github.com/dreamware/primus/internal/transport"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// manualTimer hands out channels that only fire when the test says so.
type manualTimer struct {
	mu        sync.Mutex
	pending   []chan time.Time
	durations []time.Duration
}

func (m *manualTimer) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	m.pending = append(m.pending, ch)
	m.durations = append(m.durations, d)
	return ch
}

func (m *manualTimer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *manualTimer) FireAll() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, ch := range pending {
		ch <- time.Now()
	}
}

func (m *manualTimer) Durations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.durations...)
}

// countingGateway counts list calls to tell whether an election ran.
type countingGateway struct {
	registry.Gateway
	lists atomic.Int32
}

func (g *countingGateway) ListActiveInstances(ctx context.Context) ([]cluster.Peer, error) {
	g.lists.Add(1)
	return g.Gateway.ListActiveInstances(ctx)
}

type testNode struct {
	self        *node.Identity
	coord       *Coordinator
	invokes     atomic.Int32
	leaderCalls atomic.Int32
	followCalls atomic.Int32
	addr        string
}

// testCluster wires coordinators over one catalog and memory transport.
type testCluster struct {
	catalog *registry.Catalog
	gw      *countingGateway
	tr      *transport.Memory
	timer   *manualTimer
	nodes   map[int64]*testNode
}

func newTestCluster(t *testing.T) *testCluster {
	t.Helper()
	catalog := registry.NewCatalog()
	return &testCluster{
		catalog: catalog,
		gw:      &countingGateway{Gateway: catalog},
		tr:      transport.NewMemory(),
		timer:   &manualTimer{},
		nodes:   map[int64]*testNode{},
	}
}

// add registers a node. When delegate is false the node acks election
// invocations without running an election itself.
func (tc *testCluster) add(t *testing.T, id int64, delegate bool, opts ...Option) *testNode {
	t.Helper()
	p := cluster.Peer{NodeID: id, IP: "10.0.0.1", Port: 7000 + int(id)}
	inst := registry.NewInstance("primus", p)
	inst.Check = nil
	require.NoError(t, tc.catalog.Put(inst))

	n := &testNode{self: node.New(id), addr: p.Addr()}
	opts = append([]Option{
		WithTimer(tc.timer.After),
		WithLeaderHooks(func(context.Context) { n.leaderCalls.Add(1) }, func() { n.followCalls.Add(1) }),
	}, opts...)
	n.coord = NewCoordinator(n.self, tc.gw, tc.tr, quietLogger(), opts...)
	t.Cleanup(n.coord.Stop)

	mux := http.NewServeMux()
	mux.HandleFunc(cluster.PathInformation, func(w http.ResponseWriter, r *http.Request) {
		cluster.WriteJSON(w, http.StatusOK, n.self.Information())
	})
	mux.HandleFunc(cluster.PathElectionReady, func(w http.ResponseWriter, r *http.Request) {
		cluster.WriteJSON(w, http.StatusOK, n.coord.Readiness())
	})
	mux.HandleFunc(cluster.PathElection, func(w http.ResponseWriter, r *http.Request) {
		var req cluster.ElectionInvokeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		n.invokes.Add(1)
		if delegate {
			n.coord.HandleInvoke(req.InvokeNodeID)
		}
		cluster.WriteAck(w, "OK")
	})
	mux.HandleFunc(cluster.PathElectionCompleted, func(w http.ResponseWriter, r *http.Request) {
		var req cluster.LeaderElectedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		n.coord.HandleLeaderElected(req.LeaderID)
		cluster.WriteAck(w, "OK")
	})
	tc.tr.Register(n.addr, mux)
	tc.nodes[id] = n
	return n
}

func leaderOf(n *testNode) int64 {
	id, _ := n.self.Leader()
	return id
}

func TestConcurrentElectionsConverge(t *testing.T) {
	tc := newTestCluster(t)
	ids := []int64{100, 250, 400}
	for _, id := range ids {
		tc.add(t, id, true)
	}

	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(n *testNode) {
				defer wg.Done()
				assert.NoError(t, n.coord.StartElection(context.Background()))
			}(tc.nodes[id])
		}
		wg.Wait()

		assert.Eventually(t, func() bool {
			for _, id := range ids {
				if leaderOf(tc.nodes[id]) != 400 {
					return false
				}
			}
			return true
		}, time.Second, 5*time.Millisecond, "round %d", round)

		assert.True(t, tc.nodes[400].self.IsLeader())
		assert.False(t, tc.nodes[250].self.IsLeader())
		assert.False(t, tc.nodes[100].self.IsLeader())
	}
}

func TestStartElectionIsNoOpWhileRunning(t *testing.T) {
	tc := newTestCluster(t)
	n := tc.add(t, 100, true)

	require.True(t, n.self.TryBeginElection())
	require.NoError(t, n.coord.StartElection(context.Background()))
	assert.Zero(t, tc.gw.lists.Load())
}

func TestHighestNodeBecomesLeader(t *testing.T) {
	tc := newTestCluster(t)
	low := tc.add(t, 100, true)
	high := tc.add(t, 400, true)

	require.NoError(t, high.coord.StartElection(context.Background()))

	assert.True(t, high.self.IsLeader())
	assert.False(t, high.self.ElectionOngoing())
	assert.Equal(t, int32(1), high.leaderCalls.Load())
	assert.Equal(t, int64(400), leaderOf(low), "followers learn the leader from the broadcast")
	assert.Equal(t, int32(1), low.followCalls.Load())
}

func TestExistingLeaderWins(t *testing.T) {
	tc := newTestCluster(t)
	incumbent := tc.add(t, 50, true)
	incumbent.self.SetLeader(50)
	newcomer := tc.add(t, 300, true)

	require.NoError(t, newcomer.coord.StartElection(context.Background()))

	assert.Equal(t, int64(50), leaderOf(newcomer), "a lower incumbent is adopted")
	assert.False(t, newcomer.self.ElectionOngoing())
	assert.Zero(t, newcomer.leaderCalls.Load())
}

func TestUnreachablePeersAreLeftOut(t *testing.T) {
	tc := newTestCluster(t)
	low := tc.add(t, 100, true)
	tc.add(t, 400, true)
	tc.tr.SetDown(tc.nodes[400].addr, true)

	require.NoError(t, low.coord.StartElection(context.Background()))
	assert.True(t, low.self.IsLeader())
}

func TestCriticalPeersAreLeftOut(t *testing.T) {
	tc := newTestCluster(t)
	low := tc.add(t, 100, true)
	tc.add(t, 400, true)
	tc.catalog.SetHealth("400", cluster.HealthCritical)

	require.NoError(t, low.coord.StartElection(context.Background()))
	assert.True(t, low.self.IsLeader())
	assert.Zero(t, tc.nodes[400].invokes.Load())
}

func TestNoReadyHigherNodeDropsElection(t *testing.T) {
	tc := newTestCluster(t)
	low := tc.add(t, 100, true)
	high := tc.add(t, 400, true)
	require.True(t, high.self.TryBeginElection())

	require.NoError(t, low.coord.StartElection(context.Background()))

	assert.False(t, low.self.ElectionOngoing(), "flag is cleared when nobody can take over")
	_, ok := low.self.Leader()
	assert.False(t, ok)
	assert.Zero(t, high.invokes.Load())
}

func TestDelegationTimeoutRetries(t *testing.T) {
	tc := newTestCluster(t)
	low := tc.add(t, 100, true, WithDelegationTimeout(30*time.Second))
	high := tc.add(t, 400, false)

	require.NoError(t, low.coord.StartElection(context.Background()))
	assert.Equal(t, int32(1), high.invokes.Load())
	assert.True(t, low.self.ElectionOngoing(), "waiting for the higher node")
	require.Eventually(t, func() bool { return tc.timer.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{30 * time.Second}, tc.timer.Durations())

	tc.timer.FireAll()
	assert.Eventually(t, func() bool { return high.invokes.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, low.self.ElectionOngoing())
	require.Eventually(t, func() bool { return tc.timer.Pending() == 1 }, time.Second, 5*time.Millisecond)

	// a leader announcement makes the next timeout a no-op
	low.coord.HandleLeaderElected(400)
	assert.False(t, low.self.ElectionOngoing())
	tc.timer.FireAll()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), high.invokes.Load())
}

func TestOnRegistered(t *testing.T) {
	tc := newTestCluster(t)
	n := tc.add(t, 100, true, WithRand(func(n int64) int64 { return n - 1 }))

	n.coord.OnRegistered()
	require.Eventually(t, func() bool { return tc.timer.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{15 * time.Second}, tc.timer.Durations(), "delay is drawn from the bounds")
	assert.Equal(t, int32(1), tc.gw.lists.Load(), "peers are asked for a leader once before the delay")
	_, ok := n.self.Leader()
	assert.False(t, ok)

	tc.timer.FireAll()
	assert.Eventually(t, n.self.IsLeader, time.Second, 5*time.Millisecond)
}

func TestOnRegisteredSkipsWhenLeaderKnown(t *testing.T) {
	tc := newTestCluster(t)
	n := tc.add(t, 100, true, WithRand(func(int64) int64 { return 0 }))

	n.coord.OnRegistered()
	require.Eventually(t, func() bool { return tc.timer.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{5 * time.Second}, tc.timer.Durations())

	n.coord.HandleLeaderElected(999)
	tc.timer.FireAll()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), tc.gw.lists.Load(), "no election after the delay")
}

func TestOnRegisteredAdoptsSittingLeader(t *testing.T) {
	tc := newTestCluster(t)
	incumbent := tc.add(t, 400, true)
	incumbent.self.SetLeader(400)
	newcomer := tc.add(t, 100, true)

	newcomer.coord.OnRegistered()

	assert.Eventually(t, func() bool { return leaderOf(newcomer) == 400 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), newcomer.followCalls.Load())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, tc.timer.Pending(), "no election is scheduled")
	assert.Zero(t, incumbent.invokes.Load())
}

func TestOnRegisteredTracksSittingLeaderOverHigherFollower(t *testing.T) {
	tc := newTestCluster(t)
	incumbent := tc.add(t, 400, true)
	incumbent.self.SetLeader(400)
	follower := tc.add(t, 500, true)
	follower.self.SetLeader(400)
	newcomer := tc.add(t, 600, true)

	newcomer.coord.OnRegistered()

	assert.Eventually(t, func() bool { return leaderOf(newcomer) == 400 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, newcomer.leaderCalls.Load(), "a higher id does not unseat the leader")
}

func TestLeaderSkipsElection(t *testing.T) {
	tc := newTestCluster(t)
	leader := tc.add(t, 400, true)
	leader.self.SetLeader(400)
	higher := tc.add(t, 500, true)
	higher.self.SetLeader(400)
	lower := tc.add(t, 100, true)
	lower.self.SetLeader(400)

	require.NoError(t, leader.coord.StartElection(context.Background()))

	assert.True(t, leader.self.IsLeader())
	assert.False(t, leader.self.ElectionOngoing())
	assert.Zero(t, higher.invokes.Load(), "nothing is forwarded upward")
	assert.Zero(t, leader.leaderCalls.Load(), "leadership is not taken twice")
	assert.Zero(t, lower.followCalls.Load(), "no second announcement")
	assert.Zero(t, tc.gw.lists.Load())
	assert.Zero(t, tc.timer.Pending())
}

func TestLeaderAnswersInvoke(t *testing.T) {
	tc := newTestCluster(t)
	leader := tc.add(t, 400, true)
	leader.self.SetLeader(400)
	lower := tc.add(t, 100, true)
	require.True(t, lower.self.TryBeginElection())

	leader.coord.HandleInvoke(100)

	assert.Eventually(t, func() bool { return leaderOf(lower) == 400 }, time.Second, 5*time.Millisecond)
	assert.False(t, lower.self.ElectionOngoing(), "the announcement ends the invoker's election")
	assert.Zero(t, leader.leaderCalls.Load())
	assert.False(t, leader.self.ElectionOngoing())
}

func TestWatchLeaderCritical(t *testing.T) {
	tc := newTestCluster(t)
	follower := tc.add(t, 100, true)
	tc.add(t, 400, true)
	follower.self.SetLeader(400)

	follower.coord.WatchLeader()
	require.Eventually(t, func() bool { return tc.timer.Pending() == 1 }, time.Second, 5*time.Millisecond)

	// healthy leader: nothing changes
	tc.timer.FireAll()
	require.Eventually(t, func() bool { return tc.timer.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(400), leaderOf(follower))
	assert.Zero(t, tc.gw.lists.Load())

	tc.catalog.SetHealth("400", cluster.HealthCritical)
	tc.timer.FireAll()
	assert.Eventually(t, follower.self.IsLeader, time.Second, 5*time.Millisecond)

	for _, d := range tc.timer.Durations() {
		assert.GreaterOrEqual(t, d, 40*time.Second)
		assert.LessOrEqual(t, d, 60*time.Second)
	}
}

func TestWatchLeaderDeregistered(t *testing.T) {
	tc := newTestCluster(t)
	follower := tc.add(t, 100, true)
	follower.self.SetLeader(777)

	follower.coord.WatchLeader()
	require.Eventually(t, func() bool { return tc.timer.Pending() == 1 }, time.Second, 5*time.Millisecond)
	tc.timer.FireAll()

	assert.Eventually(t, follower.self.IsLeader, time.Second, 5*time.Millisecond)
}

func TestStopCancelsTimers(t *testing.T) {
	tc := newTestCluster(t)
	n := tc.add(t, 100, true)

	n.coord.OnRegistered()
	n.coord.WatchLeader()
	require.Eventually(t, func() bool { return tc.timer.Pending() == 2 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		n.coord.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	before := tc.gw.lists.Load()
	n.coord.HandleInvoke(1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, tc.gw.lists.Load(), "no work is started after Stop")
}

func TestBetween(t *testing.T) {
	c := NewCoordinator(node.New(1), registry.NewCatalog(), transport.NewMemory(), quietLogger(),
		WithRand(func(n int64) int64 { return n / 2 }))
	defer c.Stop()

	assert.Equal(t, 10*time.Second, c.between(Bounds{Min: 10 * time.Second, Max: 10 * time.Second}))
	assert.Equal(t, 10*time.Second, c.between(Bounds{Min: 10 * time.Second, Max: time.Second}))
	assert.Equal(t, 10*time.Second, c.between(Bounds{Min: 5 * time.Second, Max: 15 * time.Second}))
}
