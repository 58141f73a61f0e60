// Package peer assembles one primus node from its configuration and the
// registry and transport it talks through.
package peer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/api"
	"github.com/dreamware/primus/internal/backlog"
	"github.com/dreamware/primus/internal/cache"
	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/config"
	"github.com/dreamware/primus/internal/election"
	"github.com/dreamware/primus/internal/leader"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/paxos"
	"github.com/dreamware/primus/internal/registry"
	"github.com/dreamware/primus/internal/transport"
)

// Options carries the collaborators of a peer. Gateway and Transport are
// required; the rest have defaults.
type Options struct {
	Config    config.Node
	Identity  *node.Identity
	Gateway   registry.Gateway
	Transport transport.Transport
	Source    backlog.Source
	Sink      backlog.Sink
	Cache     cache.Cache
	Log       logrus.FieldLogger

	// ElectionOptions are applied after the ones derived from Config.
	ElectionOptions []election.Option
}

// Peer is one assembled node.
type Peer struct {
	Self      *node.Identity
	Directory *registry.Directory
	Proposer  *paxos.Proposer
	Acceptor  *paxos.Acceptor
	Learner   *paxos.Learner
	Roles     *leader.RoleScheduler
	Work      *leader.WorkScheduler
	Runtime   *leader.Runtime
	Election  *election.Coordinator
	API       *api.Server

	cfg config.Node
	gw  registry.Gateway
	log logrus.FieldLogger
}

func New(o Options) (*Peer, error) {
	if o.Gateway == nil || o.Transport == nil {
		return nil, errors.New("peer: gateway and transport are required")
	}
	if o.Identity == nil {
		o.Identity = node.New(node.NewID(rand.New(rand.NewSource(time.Now().UnixNano())), time.Now()))
	}
	if o.Source == nil {
		o.Source = backlog.NewFileSource(o.Config.NumbersFile)
	}
	if o.Sink == nil {
		o.Sink = backlog.NewFileSink(o.Config.ResultsFile)
	}
	if o.Cache == nil {
		o.Cache = cache.NewMemoryCache()
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}

	cfg := o.Config
	self := o.Identity
	log := o.Log.WithField("node", self.ID())

	p := &Peer{Self: self, cfg: cfg, gw: o.Gateway, log: log}
	p.Directory = registry.NewDirectory(o.Gateway, o.Cache, cfg.Cache.RoleTTL, log)
	p.Proposer = paxos.NewProposer(self, p.Directory, o.Transport, o.Cache, cfg.Cache.ResultTTL, log)
	p.Acceptor = paxos.NewAcceptor(self, p.Directory, o.Transport, log)
	p.Learner = paxos.NewLearner(self, p.Directory, o.Transport, log)

	quotas := leader.Quotas{Acceptors: cfg.Roles.Acceptors, Learners: cfg.Roles.Learners}
	limits := leader.Limits{MaxErrors: cfg.Work.MaxErrors, MaxRounds: cfg.Work.MaxRounds}
	p.Roles = leader.NewRoleScheduler(self, o.Gateway, p.Directory, o.Transport, quotas, log)
	p.Work = leader.NewWorkScheduler(o.Source, o.Sink, p.Directory, p.Roles, o.Transport, limits, log)
	p.Runtime = leader.NewRuntime(p.Roles, p.Work, cfg.Work.StallRetry, log, leader.WithRoundTimeout(cfg.Work.RoundTimeout))

	opts := []election.Option{
		election.WithElectionDelay(election.Bounds(cfg.Election.Delay)),
		election.WithWatchInterval(election.Bounds(cfg.Election.LeaderPing)),
		election.WithDelegationTimeout(cfg.Election.DelegationTimeout),
		election.WithLeaderHooks(p.Runtime.Start, p.Runtime.Stop),
	}
	p.Election = election.NewCoordinator(self, o.Gateway, o.Transport, log, append(opts, o.ElectionOptions...)...)

	p.API = api.NewServer(self, api.Handlers{
		Election: p.Election,
		Proposer: p.Proposer,
		Acceptor: p.Acceptor,
		Learner:  p.Learner,
		Leader:   p.Work,
	}, log)
	return p, nil
}

// Handler returns the router serving the peer protocol.
func (p *Peer) Handler() http.Handler {
	r := mux.NewRouter()
	p.API.Routes(r)
	return r
}

// Descriptor is how other peers reach this one.
func (p *Peer) Descriptor() cluster.Peer {
	return cluster.Peer{NodeID: p.Self.ID(), IP: p.cfg.IP, Port: p.cfg.Port, Role: p.Self.Role()}
}

// Instance is the registry entry of this peer.
func (p *Peer) Instance() registry.Instance {
	return registry.NewInstance(p.cfg.AppName, p.Descriptor())
}

// Register adds the peer to the registry and schedules its first
// election and the leader watch.
func (p *Peer) Register(ctx context.Context) error {
	if err := p.gw.Register(ctx, p.Instance()); err != nil {
		return fmt.Errorf("register %d: %w", p.Self.ID(), err)
	}
	p.log.WithField("addr", p.Descriptor().Addr()).Info("registered")

	p.Election.OnRegistered()
	p.Election.WatchLeader()
	return nil
}

// Shutdown stops every background task and deregisters the peer.
func (p *Peer) Shutdown(ctx context.Context) error {
	p.Election.Stop()
	p.Runtime.Stop()
	p.API.Close()

	if err := p.gw.Deregister(ctx, p.Self.ID()); err != nil && !errors.Is(err, registry.ErrInstanceNotFound) {
		return fmt.Errorf("deregister %d: %w", p.Self.ID(), err)
	}
	p.log.Info("deregistered")
	return nil
}
