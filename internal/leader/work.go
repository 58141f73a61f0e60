package leader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/backlog"
	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/fanout"
	"github.com/dreamware/primus/internal/transport"
)

// ErrNoProposers is returned when a number cannot be dispatched because no
// peer holds the proposer role.
var ErrNoProposers = errors.New("leader: no proposers available")

// Topology is the part of RoleScheduler the work scheduler drives.
type Topology interface {
	PrepareRoles(ctx context.Context) error
	InformLearner(ctx context.Context) error
}

// Limits bounds the retries spent on one number.
type Limits struct {
	// MaxErrors is how many invalid proposals a round tolerates before it
	// is restarted.
	MaxErrors int
	// MaxRounds is how many restarts a number gets before it is recorded as
	// unresolved.
	MaxRounds int
}

var DefaultLimits = Limits{MaxErrors: 3, MaxRounds: 3}

// WorkScheduler verifies the backlog one number at a time.
type WorkScheduler struct {
	source   backlog.Source
	sink     backlog.Sink
	dir      Directory
	topology Topology
	tr       transport.Transport
	log      logrus.FieldLogger
	limits   Limits

	now func() time.Time

	mu        sync.Mutex
	started   time.Time
	current   int64
	errors    int
	rounds    int
	active    bool
	stalled   bool
	exhausted bool
}

type WorkOption func(*WorkScheduler)

// WithClock replaces time.Now for round ages.
func WithClock(now func() time.Time) WorkOption {
	return func(w *WorkScheduler) { w.now = now }
}

func NewWorkScheduler(source backlog.Source, sink backlog.Sink, dir Directory, topology Topology, tr transport.Transport, limits Limits, log logrus.FieldLogger, opts ...WorkOption) *WorkScheduler {
	w := &WorkScheduler{
		source:   source,
		sink:     sink,
		dir:      dir,
		topology: topology,
		tr:       tr,
		limits:   limits,
		log:      log.WithField("component", "work-scheduler"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Current returns the number being verified, if any.
func (w *WorkScheduler) Current() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.active
}

// Stalled reports whether the current number is waiting for proposers.
func (w *WorkScheduler) Stalled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stalled
}

// Exhausted reports whether the backlog has run out.
func (w *WorkScheduler) Exhausted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exhausted
}

// DispatchNext takes the next number from the backlog and dispatches it.
// An exhausted backlog is terminal and not an error. Malformed backlog
// entries are logged and skipped.
func (w *WorkScheduler) DispatchNext(ctx context.Context) error {
	w.mu.Lock()
	if w.exhausted {
		w.mu.Unlock()
		return nil
	}

	var number int64
	for {
		n, ok, err := w.source.Next()
		if err != nil && ok {
			w.log.WithError(err).Warn("skipping backlog entry")
			continue
		}
		if err != nil {
			w.mu.Unlock()
			return fmt.Errorf("read backlog: %w", err)
		}
		if !ok {
			w.exhausted = true
			w.active = false
			w.mu.Unlock()
			w.log.Info("backlog exhausted")
			return nil
		}
		number = n
		break
	}

	w.current = number
	w.active = true
	w.errors = 0
	w.rounds = 0
	w.mu.Unlock()

	return w.Dispatch(ctx, number)
}

// Resume re-dispatches the current number, or starts the next one when no
// number is in flight.
func (w *WorkScheduler) Resume(ctx context.Context) error {
	number, active := w.Current()
	if !active {
		return w.DispatchNext(ctx)
	}
	return w.Dispatch(ctx, number)
}

// Dispatch splits number across the current proposers and sends every
// range in parallel. Failed sends are logged only; the acceptors and the
// retry ceiling recover from lost work.
func (w *WorkScheduler) Dispatch(ctx context.Context, number int64) error {
	proposers, err := w.dir.Proposers(ctx)
	if err == nil && len(proposers) == 0 {
		err = ErrNoProposers
	}
	if err != nil {
		w.mu.Lock()
		w.stalled = true
		w.mu.Unlock()
		w.log.WithField("number", number).WithError(err).Warn("dispatch stalled")
		return err
	}

	w.mu.Lock()
	w.stalled = false
	w.started = w.now()
	w.mu.Unlock()

	type job struct {
		peer cluster.Peer
		req  cluster.PrimeCheckRequest
	}
	ranges := Partition(number, len(proposers))
	jobs := make([]job, len(proposers))
	for i, p := range proposers {
		jobs[i] = job{peer: p, req: ranges[i]}
	}

	results := fanout.Run(ctx, jobs, func(ctx context.Context, j job) error {
		return w.tr.Post(ctx, j.peer.Addr(), cluster.PathProposerCheck, j.req, nil)
	})
	for _, r := range fanout.Failed(results) {
		w.log.WithFields(logrus.Fields{"proposer": r.Target.peer.NodeID, "request": r.Target.req.String()}).WithError(r.Err).Warn("dispatch failed")
	}

	w.log.WithFields(logrus.Fields{"number": number, "proposers": len(proposers)}).Info("number dispatched")
	return nil
}

// Expire restarts the current round when it has waited longer than timeout
// for a consensus, and reports whether it did. A lost consensus report
// would otherwise hold the number forever; the restart counts against
// MaxRounds like any other.
func (w *WorkScheduler) Expire(ctx context.Context, timeout time.Duration) (bool, error) {
	w.mu.Lock()
	number := w.current
	expired := w.active && !w.stalled && w.now().Sub(w.started) >= timeout
	w.mu.Unlock()
	if !expired {
		return false, nil
	}

	w.log.WithFields(logrus.Fields{"number": number, "timeout": timeout}).Warn("round timed out")
	return true, w.reround(ctx, number)
}

// HandleError handles an acceptor's report that madeBy proposed a wrong
// verdict for req. Reports about a number that is no longer current are
// ignored.
func (w *WorkScheduler) HandleError(ctx context.Context, req cluster.PrimeCheckRequest, madeBy int64) error {
	w.mu.Lock()
	if !w.active || req.Check != w.current {
		w.mu.Unlock()
		w.log.WithField("request", req.String()).Debug("stale error report ignored")
		return nil
	}
	w.errors++
	exceeded := w.errors > w.limits.MaxErrors
	w.mu.Unlock()

	log := w.log.WithFields(logrus.Fields{"request": req.String(), "proposer": madeBy})
	if exceeded {
		log.Warn("retry ceiling reached")
		return w.reround(ctx, req.Check)
	}

	proposer, err := w.dir.Peer(ctx, madeBy)
	if err != nil {
		log.WithError(err).Warn("offending proposer is gone")
		w.dir.Invalidate()
		return w.reround(ctx, req.Check)
	}
	if err := w.tr.Post(ctx, proposer.Addr(), cluster.PathProposerCheck, req, nil); err != nil {
		log.WithError(err).Warn("cannot ask proposer to recompute")
		return err
	}
	log.Info("proposer asked to recompute")
	return nil
}

// reround restarts the round for number, or gives up on it once the round
// limit is spent.
func (w *WorkScheduler) reround(ctx context.Context, number int64) error {
	w.mu.Lock()
	if !w.active || w.current != number {
		w.mu.Unlock()
		return nil
	}
	w.errors = 0
	w.rounds++
	abandon := w.rounds > w.limits.MaxRounds
	if abandon {
		w.active = false
	}
	w.mu.Unlock()

	if abandon {
		w.log.WithField("number", number).Error("number abandoned")
		if err := w.sink.AppendUnresolved(number); err != nil {
			w.log.WithError(err).Error("cannot record unresolved number")
		}
		return w.DispatchNext(ctx)
	}

	if err := w.topology.InformLearner(ctx); err != nil {
		w.log.WithError(err).Warn("cannot reset learner")
	}
	return w.Dispatch(ctx, number)
}

// HandleConsensus records the final verdict, refreshes the role topology
// and moves on to the next number.
func (w *WorkScheduler) HandleConsensus(ctx context.Context, result cluster.ConsensusResult) error {
	w.mu.Lock()
	if !w.active || result.Number != w.current {
		w.mu.Unlock()
		w.log.WithField("number", result.Number).Debug("stale consensus ignored")
		return nil
	}
	w.active = false
	w.mu.Unlock()

	log := w.log.WithFields(logrus.Fields{"number": result.Number, "verdict": result.Type})
	if err := w.sink.AppendResult(result.Number, result.Type); err != nil {
		log.WithError(err).Error("cannot record result")
	}
	log.Info("result recorded")

	if err := w.topology.PrepareRoles(ctx); err != nil {
		log.WithError(err).Warn("cannot prepare roles")
	}
	return w.DispatchNext(ctx)
}
