package paxos

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cache"
	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/transport"
)

// Proposer scans the sub-range the leader assigned and forwards its verdict
// to one acceptor picked at random.
type Proposer struct {
	self      *node.Identity
	acceptors AcceptorLookup
	tr        transport.Transport
	results   cache.Cache
	pick      func(n int) int
	log       logrus.FieldLogger
	ttl       time.Duration
}

type ProposerOption func(*Proposer)

// WithPicker replaces the uniform acceptor choice.
func WithPicker(pick func(n int) int) ProposerOption {
	return func(p *Proposer) { p.pick = pick }
}

func NewProposer(self *node.Identity, acceptors AcceptorLookup, tr transport.Transport, results cache.Cache, ttl time.Duration, log logrus.FieldLogger, opts ...ProposerOption) *Proposer {
	p := &Proposer{
		self:      self,
		acceptors: acceptors,
		tr:        tr,
		results:   results,
		ttl:       ttl,
		pick:      rand.Intn,
		log:       log.WithField("component", "proposer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func resultKey(req cluster.PrimeCheckRequest) string {
	return fmt.Sprintf("check#%d#%d#%d", req.Check, req.Start, req.End)
}

// Verdict returns the cached verdict for req or computes and caches it.
func (p *Proposer) Verdict(req cluster.PrimeCheckRequest) cluster.Verdict {
	key := resultKey(req)

	var v cluster.Verdict
	if cache.GetJSON(p.results, key, &v) {
		return v
	}

	v = Check(req.Check, req.Start, req.End)
	if err := cache.SetJSON(p.results, key, v, p.ttl); err != nil {
		p.log.WithError(err).Warn("cannot cache verdict")
	}
	return v
}

// Check computes the verdict for req and sends it to a random acceptor.
// The verdict is returned even when it could not be delivered.
func (p *Proposer) Check(ctx context.Context, req cluster.PrimeCheckRequest) (cluster.Verdict, error) {
	v := p.Verdict(req)
	log := p.log.WithFields(logrus.Fields{"request": req.String(), "verdict": v.Kind})

	acceptors, err := p.acceptors.Acceptors(ctx)
	if err != nil {
		log.WithError(err).Error("cannot list acceptors")
		return v, err
	}
	if len(acceptors) == 0 {
		log.Warn("no acceptor to send verdict to")
		return v, ErrNoAcceptor
	}

	target := acceptors[p.pick(len(acceptors))]
	body := cluster.AcceptorRequest{PrimeResponse: v, ProposedBy: p.self.ID()}
	if err := p.tr.Post(ctx, target.Addr(), cluster.PathAcceptorResponse, body, nil); err != nil {
		log.WithField("acceptor", target.NodeID).WithError(err).Error("cannot reach acceptor")
		return v, err
	}

	log.WithField("acceptor", target.NodeID).Debug("verdict proposed")
	return v, nil
}
