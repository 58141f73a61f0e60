package paxos

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/transport"
)

// Learner collects one accepted response per proposer. A round starts when
// the leader announces the proposer count and ends when every proposer has
// been heard from; the consensus is then reported to the leader.
type Learner struct {
	self  *node.Identity
	peers PeerLookup
	tr    transport.Transport
	log   logrus.FieldLogger

	mu            sync.Mutex
	seen          map[int64]bool
	responses     []cluster.LearnerResponse
	proposerCount int
	expected      int
}

func NewLearner(self *node.Identity, peers PeerLookup, tr transport.Transport, log logrus.FieldLogger) *Learner {
	return &Learner{
		self:  self,
		peers: peers,
		tr:    tr,
		log:   log.WithField("component", "learner"),
		seen:  make(map[int64]bool),
	}
}

// SetProposerCount starts a new round expecting n responses. Any round in
// progress is abandoned.
func (l *Learner) SetProposerCount(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.responses) > 0 {
		l.log.WithField("discarded", len(l.responses)).Info("round abandoned")
	}
	l.resetLocked()
	l.proposerCount = n
	l.expected = n
}

func (l *Learner) resetLocked() {
	l.responses = nil
	l.seen = make(map[int64]bool)
	l.proposerCount = 0
	l.expected = 0
}

// AddResponse records r and reports whether it completed the round. Exactly
// one call per round returns true. A second response from the same proposer
// and responses past the quorum are ignored.
func (l *Learner) AddResponse(r cluster.LearnerResponse) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addLocked(r)
}

func (l *Learner) addLocked(r cluster.LearnerResponse) (bool, error) {
	if l.proposerCount == 0 {
		return false, ErrNoRound
	}
	if l.expected == 0 || l.seen[r.CheckedBy] {
		l.log.WithFields(logrus.Fields{"proposer": r.CheckedBy, "number": r.CheckedNumber}).Debug("response ignored")
		return false, nil
	}

	l.seen[r.CheckedBy] = true
	l.responses = append(l.responses, r)
	l.expected--
	return l.expected == 0, nil
}

// Expected returns how many responses the round still waits for.
func (l *Learner) Expected() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expected
}

// Responses returns a copy of the responses of the current round.
func (l *Learner) Responses() []cluster.LearnerResponse {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]cluster.LearnerResponse(nil), l.responses...)
}

// Consensus computes the verdict of the current round without ending it.
func (l *Learner) Consensus() (cluster.ConsensusResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consensusLocked()
}

func (l *Learner) consensusLocked() (cluster.ConsensusResult, error) {
	if l.proposerCount == 0 || len(l.responses) != l.proposerCount {
		return cluster.ConsensusResult{}, fmt.Errorf("%w: have %d, want %d", ErrQuorumMismatch, len(l.responses), l.proposerCount)
	}

	result := cluster.ConsensusResult{Number: l.responses[0].CheckedNumber, Type: cluster.KindPrime}
	for _, r := range l.responses {
		if r.CheckedNumber != result.Number {
			return cluster.ConsensusResult{}, fmt.Errorf("%w: %d and %d", ErrMixedNumbers, result.Number, r.CheckedNumber)
		}
		if r.Type == cluster.KindNonPrime {
			result.Type = cluster.KindNonPrime
		}
	}
	return result, nil
}

// Finalize computes the consensus, clears the round and reports the result
// to the leader. The round is cleared even when the consensus cannot be
// computed or the report fails.
func (l *Learner) Finalize(ctx context.Context) (cluster.ConsensusResult, error) {
	l.mu.Lock()
	result, err := l.consensusLocked()
	l.resetLocked()
	l.mu.Unlock()

	return l.report(ctx, result, err)
}

// Accept adds r and finalizes the round when r completed it. Adding the
// last response and clearing the round happen under one lock, so a new
// proposer count cannot slip in between. done reports whether this call
// finalized.
func (l *Learner) Accept(ctx context.Context, r cluster.LearnerResponse) (done bool, err error) {
	l.mu.Lock()
	complete, err := l.addLocked(r)
	if err != nil || !complete {
		l.mu.Unlock()
		return false, err
	}
	result, err := l.consensusLocked()
	l.resetLocked()
	l.mu.Unlock()

	_, err = l.report(ctx, result, err)
	return true, err
}

func (l *Learner) report(ctx context.Context, result cluster.ConsensusResult, err error) (cluster.ConsensusResult, error) {
	if err != nil {
		l.log.WithError(err).Error("round failed")
		return cluster.ConsensusResult{}, err
	}

	log := l.log.WithFields(logrus.Fields{"number": result.Number, "verdict": result.Type})
	if err := postLeader(ctx, l.self, l.peers, l.tr, cluster.PathLeaderConsensus, cluster.ConsensusRequest{Consensus: result}); err != nil {
		log.WithError(err).Error("cannot report consensus")
		return result, err
	}

	log.Info("consensus reached")
	return result, nil
}
