package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/config"
	"github.com/dreamware/primus/internal/registry"
)

func startRegistry(t *testing.T, interval time.Duration) string {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.Registry{Listen: "127.0.0.1:0", HealthInterval: interval}
	stop := make(chan os.Signal, 1)
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- run(cfg, log, stop, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("registry exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("registry did not start")
	}

	t.Cleanup(func() {
		stop <- syscall.SIGTERM
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("registry did not shut down")
		}
	})
	return "http://" + addr
}

func TestRegistryServesCatalog(t *testing.T) {
	base := startRegistry(t, time.Hour)
	client := registry.NewClient(base, "primus", nil)
	ctx := context.Background()

	p := cluster.Peer{NodeID: 400001, IP: "127.0.0.1", Port: 1}
	inst := registry.NewInstance("primus", p)
	inst.Check = nil
	require.NoError(t, client.Register(ctx, inst))

	peers, err := client.ListActiveInstances(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, int64(400001), peers[0].NodeID)

	resp, err := http.Get(base + cluster.PathHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegistryChecksHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer node.Close()

	base := startRegistry(t, 20*time.Millisecond)
	client := registry.NewClient(base, "primus", nil)
	ctx := context.Background()

	inst := registry.NewInstance("primus", cluster.Peer{NodeID: 400002, IP: "127.0.0.1", Port: 1})
	inst.Check = &registry.Check{HTTP: node.URL + cluster.PathHealth, Interval: "1s"}
	require.NoError(t, client.Register(ctx, inst))

	status := func(want cluster.HealthStatus) func() bool {
		return func() bool {
			got, err := client.GetInstanceHealth(ctx, 400002)
			return err == nil && got == want
		}
	}
	assert.Eventually(t, status(cluster.HealthPassing), 5*time.Second, 10*time.Millisecond)

	healthy.Store(false)
	assert.Eventually(t, status(cluster.HealthCritical), 5*time.Second, 10*time.Millisecond)

	peers, err := client.ListActiveInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, peers)
}
