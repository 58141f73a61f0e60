package leader

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/primus/internal/cache"
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

// recorder captures the bodies posted to one peer.
type recorder struct {
	mu     sync.Mutex
	bodies map[string][]json.RawMessage
	status int
}

func newRecorder() *recorder {
	return &recorder{bodies: map[string][]json.RawMessage{}, status: http.StatusOK}
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	data, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies[req.URL.Path] = append(r.bodies[req.URL.Path], data)
	status := r.status
	r.mu.Unlock()
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	cluster.WriteAck(w, "OK")
}

func (r *recorder) setStatus(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = code
}

func (r *recorder) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies[path])
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = map[string][]json.RawMessage{}
}

func decodeAll[T any](t *testing.T, r *recorder, path string) []T {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, len(r.bodies[path]))
	for _, b := range r.bodies[path] {
		var v T
		require.NoError(t, json.Unmarshal(b, &v))
		out = append(out, v)
	}
	return out
}

// cluster of recorders registered in a catalog; node 1000 is the leader.
type harness struct {
	self    *node.Identity
	catalog *registry.Catalog
	dir     *registry.Directory
	tr      *transport.Memory
	peers   map[int64]*recorder
}

func newHarness(t *testing.T, roles ...cluster.Role) *harness {
	t.Helper()
	h := &harness{
		self:    node.New(1000),
		catalog: registry.NewCatalog(),
		tr:      transport.NewMemory(),
		peers:   map[int64]*recorder{},
	}
	h.self.SetLeader(1000)
	h.add(t, 1000, cluster.RoleNone)
	for i, r := range roles {
		h.add(t, int64(i+1), r)
	}
	h.dir = registry.NewDirectory(h.catalog, cache.NewMemoryCache(), time.Minute, quietLogger())
	return h
}

func (h *harness) add(t *testing.T, id int64, role cluster.Role) {
	p := cluster.Peer{NodeID: id, IP: "10.0.0.1", Port: 8000 + int(id), Role: role}
	require.NoError(t, h.catalog.Put(registry.NewInstance("primus", p)))
	rec := newRecorder()
	h.peers[id] = rec
	h.tr.Register(p.Addr(), rec)
}
