package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cluster"
)

// Target is one health check: the instance id and the URL to GET.
type Target struct {
	ID  string
	URL string
}

// InstanceHealth tracks the check history of one instance.
type InstanceHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	ID               string
	Status           cluster.HealthStatus
	ConsecutiveFails int
}

// HealthMonitor checks every registered instance at a fixed interval. An
// instance turns critical after maxFailures consecutive failed checks and
// passing again on its next successful one.
type HealthMonitor struct {
	instances   map[string]*InstanceHealth
	httpClient  *http.Client
	checkFunc   func(ctx context.Context, url string) error
	onChange    func(id string, status cluster.HealthStatus)
	log         logrus.FieldLogger
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

func NewHealthMonitor(interval time.Duration, log logrus.FieldLogger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	h := &HealthMonitor{
		interval:    interval,
		maxFailures: 3,
		instances:   make(map[string]*InstanceHealth),
		httpClient:  &http.Client{Timeout: 2 * time.Second},
		log:         log.WithField("component", "health-monitor"),
		ctx:         ctx,
		cancel:      cancel,
	}
	h.checkFunc = h.httpCheck
	return h
}

// SetOnChange registers a callback run whenever an instance changes status.
func (h *HealthMonitor) SetOnChange(fn func(id string, status cluster.HealthStatus)) {
	h.onChange = fn
}

// SetCheckFunction replaces the HTTP check, mainly for tests.
func (h *HealthMonitor) SetCheckFunction(fn func(ctx context.Context, url string) error) {
	h.checkFunc = fn
}

// Start checks the targets returned by provider until ctx or the monitor is
// cancelled. It blocks; run it in its own goroutine.
func (h *HealthMonitor) Start(ctx context.Context, provider func() []Target) {
	h.wg.Add(1)
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.WithField("interval", h.interval).Info("health monitor started")

	h.checkAll(provider())

	for {
		select {
		case <-ticker.C:
			h.checkAll(provider())
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop cancels the monitor and waits for Start to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	h.log.Info("health monitor stopped")
}

func (h *HealthMonitor) checkAll(targets []Target) {
	current := make(map[string]bool, len(targets))

	var wg sync.WaitGroup
	for _, t := range targets {
		current[t.ID] = true
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			h.check(t)
		}(t)
	}
	wg.Wait()

	h.mu.Lock()
	for id := range h.instances {
		if !current[id] {
			delete(h.instances, id)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) check(t Target) {
	h.mu.Lock()
	health, ok := h.instances[t.ID]
	if !ok {
		health = &InstanceHealth{ID: t.ID, Status: cluster.HealthUnknown}
		h.instances[t.ID] = health
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(h.ctx, h.httpClient.Timeout)
	err := h.checkFunc(ctx, t.URL)
	cancel()

	h.mu.Lock()
	previous := health.Status
	health.LastCheck = time.Now()
	if err != nil {
		health.ConsecutiveFails++
		h.log.WithFields(logrus.Fields{
			"instance": t.ID,
			"attempt":  health.ConsecutiveFails,
		}).WithError(err).Debug("health check failed")
		if health.ConsecutiveFails >= h.maxFailures {
			health.Status = cluster.HealthCritical
		}
	} else {
		health.Status = cluster.HealthPassing
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
	}
	status := health.Status
	h.mu.Unlock()

	if status != previous {
		h.log.WithFields(logrus.Fields{"instance": t.ID, "status": status}).Info("health changed")
		if h.onChange != nil {
			h.onChange(t.ID, status)
		}
	}
}

func (h *HealthMonitor) httpCheck(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Status returns a copy of the check history of id, or nil.
func (h *HealthMonitor) Status(id string) *InstanceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, ok := h.instances[id]
	if !ok {
		return nil
	}
	c := *health
	return &c
}
