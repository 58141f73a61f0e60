package leader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runtime runs the leader duties while this node leads. Start and Stop may
// be called any number of times as leadership comes and goes.
type Runtime struct {
	roles *RoleScheduler
	work  *WorkScheduler
	log   logrus.FieldLogger

	mu           sync.Mutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	retry        time.Duration
	roundTimeout time.Duration
}

type RuntimeOption func(*Runtime)

// WithRoundTimeout restarts a round that has seen no consensus for d.
// Zero disables it.
func WithRoundTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) { r.roundTimeout = d }
}

// NewRuntime returns a runtime that retries a stalled dispatch every retry.
func NewRuntime(roles *RoleScheduler, work *WorkScheduler, retry time.Duration, log logrus.FieldLogger, opts ...RuntimeOption) *Runtime {
	r := &Runtime{roles: roles, work: work, retry: retry, log: log.WithField("component", "leader")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the leader duties in the background. It is a no-op while
// they are already running.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Running reports whether the leader duties are active.
func (r *Runtime) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Stop ends the leader duties and waits for them to return.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.wg.Wait()
		r.log.Info("leader duties stopped")
	}
}

func (r *Runtime) run(ctx context.Context) {
	r.log.Info("leader duties started")

	if err := r.roles.ClearOwnRole(ctx); err != nil {
		r.log.WithError(err).Warn("cannot clear own role")
	}
	if err := r.roles.PrepareRoles(ctx); err != nil {
		r.log.WithError(err).Warn("cannot prepare roles")
	}
	if err := r.work.Resume(ctx); err != nil {
		r.log.WithError(err).Warn("cannot start work")
	}

	period := r.retry
	if period <= 0 {
		period = r.roundTimeout
	}
	if period <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runtime) tick(ctx context.Context) {
	if !r.work.Stalled() {
		if r.roundTimeout > 0 {
			if _, err := r.work.Expire(ctx, r.roundTimeout); err != nil {
				r.log.WithError(err).Warn("cannot restart timed out round")
			}
		}
		return
	}
	if err := r.roles.PrepareRoles(ctx); err != nil {
		r.log.WithError(err).Debug("still cannot prepare roles")
	}
	if err := r.work.Resume(ctx); err != nil {
		r.log.WithError(err).Debug("dispatch still stalled")
	}
}
