package paxos

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/transport"
)

// AcceptorPeers is what an acceptor needs to know about the cluster.
type AcceptorPeers interface {
	LearnerLookup
	PeerLookup
}

// Acceptor re-checks the verdicts proposers send it.
type Acceptor struct {
	self  *node.Identity
	peers AcceptorPeers
	tr    transport.Transport
	log   logrus.FieldLogger
}

func NewAcceptor(self *node.Identity, peers AcceptorPeers, tr transport.Transport, log logrus.FieldLogger) *Acceptor {
	return &Acceptor{self: self, peers: peers, tr: tr, log: log.WithField("component", "acceptor")}
}

// Verify checks v and forwards it to the learner. Prime claims are trusted.
// A non-prime claim whose divisor does not hold is reported to the leader
// and nothing reaches the learner; Verify then returns ErrInvalidProposal.
func (a *Acceptor) Verify(ctx context.Context, v cluster.Verdict, proposedBy int64) (cluster.LearnerResponse, error) {
	log := a.log.WithFields(logrus.Fields{"number": v.Number, "proposer": proposedBy, "verdict": v.Kind})

	switch v.Kind {
	case cluster.KindPrime:
	case cluster.KindNonPrime:
		if !ValidDivisor(v.Number, v.Divisor) {
			log.WithField("divisor", v.Divisor).Warn("proposal rejected")
			err := fmt.Errorf("%w: %d is not a divisor of %d", ErrInvalidProposal, v.Divisor, v.Number)
			report := cluster.LeaderErrorRequest{
				Request: v.Request(),
				Type:    cluster.ErrorTypePrimeCheck,
				MadeBy:  proposedBy,
			}
			if rerr := postLeader(ctx, a.self, a.peers, a.tr, cluster.PathLeaderError, report); rerr != nil {
				log.WithError(rerr).Error("cannot report invalid proposal")
				return cluster.LearnerResponse{}, errors.Join(err, rerr)
			}
			return cluster.LearnerResponse{}, err
		}
	default:
		return cluster.LearnerResponse{}, fmt.Errorf("%w: unknown verdict %q", ErrInvalidProposal, v.Kind)
	}

	resp := cluster.LearnerResponse{CheckedNumber: v.Number, Type: v.Kind, CheckedBy: proposedBy}

	learner, err := a.peers.Learner(ctx)
	if err != nil {
		log.WithError(err).Error("cannot find learner")
		return resp, err
	}
	if err := a.tr.Post(ctx, learner.Addr(), cluster.PathLearnerResponse, cluster.LearnerRequest{Result: resp}, nil); err != nil {
		log.WithField("learner", learner.NodeID).WithError(err).Error("cannot reach learner")
		return resp, err
	}

	log.Debug("proposal accepted")
	return resp, nil
}
