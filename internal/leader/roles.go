package leader

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/fanout"
	"github.com/dreamware/primus/internal/node"
	"github.com/dreamware/primus/internal/registry"
	"github.com/dreamware/primus/internal/transport"
)

// Directory is the cached role lookup the leader reads and primes.
type Directory interface {
	Proposers(ctx context.Context) ([]cluster.Peer, error)
	Learner(ctx context.Context) (cluster.Peer, error)
	Peer(ctx context.Context, id int64) (cluster.Peer, error)
	Prime(role cluster.Role, peers []cluster.Peer)
	Invalidate()
}

// RoleScheduler assigns roles to the active peers and tells the learner
// how many proposers to wait for.
type RoleScheduler struct {
	self   *node.Identity
	gw     registry.Gateway
	dir    Directory
	tr     transport.Transport
	log    logrus.FieldLogger
	quotas Quotas
}

func NewRoleScheduler(self *node.Identity, gw registry.Gateway, dir Directory, tr transport.Transport, quotas Quotas, log logrus.FieldLogger) *RoleScheduler {
	return &RoleScheduler{
		self:   self,
		gw:     gw,
		dir:    dir,
		tr:     tr,
		quotas: quotas,
		log:    log.WithField("component", "role-scheduler"),
	}
}

// ClearOwnRole drops any role this node held before it became leader.
func (s *RoleScheduler) ClearOwnRole(ctx context.Context) error {
	s.self.SetRole(cluster.RoleNone)
	if err := s.gw.UpdateInstanceMetadata(ctx, s.self.ID(), map[string]string{registry.MetaRole: ""}); err != nil {
		return fmt.Errorf("clear own role: %w", err)
	}
	return nil
}

// PrepareRoles assigns a role to every active peer without one, primes the
// role cache and then informs the learner. Individual assignment failures
// are logged and do not stop the others.
func (s *RoleScheduler) PrepareRoles(ctx context.Context) error {
	active, err := s.gw.ListActiveInstances(ctx)
	if err != nil {
		return fmt.Errorf("list active peers: %w", err)
	}

	peers := slices.DeleteFunc(active, func(p cluster.Peer) bool { return p.NodeID == s.self.ID() })

	assignments := Plan(peers, s.quotas)
	results := fanout.Run(ctx, assignments, s.assign)

	applied := make([]cluster.RoleAssignment, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			s.log.WithFields(logrus.Fields{"peer": r.Target.NodeID, "role": r.Target.Role}).WithError(r.Err).Warn("role assignment failed")
			continue
		}
		applied = append(applied, r.Target)
	}
	if len(assignments) > 0 {
		s.log.WithFields(logrus.Fields{"assigned": len(applied), "failed": len(assignments) - len(applied)}).Info("roles prepared")
	}

	s.prime(Apply(peers, applied))

	return s.InformLearner(ctx)
}

func (s *RoleScheduler) assign(ctx context.Context, a cluster.RoleAssignment) error {
	if err := s.gw.UpdateInstanceMetadata(ctx, a.NodeID, map[string]string{registry.MetaRole: string(a.Role)}); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	var resp cluster.RoleAlertResponse
	return s.tr.Post(ctx, a.Addr(), cluster.PathRoleAlert, cluster.RoleAlertRequest{Role: a.Role}, &resp)
}

func (s *RoleScheduler) prime(peers []cluster.Peer) {
	byRole := map[cluster.Role][]cluster.Peer{}
	for _, p := range peers {
		byRole[p.Role] = append(byRole[p.Role], p)
	}
	for _, r := range []cluster.Role{cluster.RoleAcceptor, cluster.RoleLearner, cluster.RoleProposer} {
		s.dir.Prime(r, byRole[r])
	}
}

// InformLearner announces the current proposer count to the learner,
// starting a fresh round there.
func (s *RoleScheduler) InformLearner(ctx context.Context) error {
	proposers, err := s.dir.Proposers(ctx)
	if err != nil {
		return fmt.Errorf("list proposers: %w", err)
	}
	learner, err := s.dir.Learner(ctx)
	if err != nil {
		return err
	}

	body := cluster.ProposerCountRequest{ProposerCount: len(proposers)}
	if err := s.tr.Post(ctx, learner.Addr(), cluster.PathProposerCount, body, nil); err != nil {
		return fmt.Errorf("inform learner %d: %w", learner.NodeID, err)
	}
	s.log.WithFields(logrus.Fields{"learner": learner.NodeID, "proposers": len(proposers)}).Debug("learner informed")
	return nil
}
