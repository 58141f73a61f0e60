// Package node holds the identity and mutable runtime state of one peer.
package node

import (
	"errors"
	"sync"
	"time"

	"github.com/dreamware/primus/internal/cluster"
)

// ErrNoLeader is returned when the acting leader is requested before one
// has been elected.
var ErrNoLeader = errors.New("node: leader not known")

const (
	idFloor = 400000
	idSpan  = 100000
)

// Rand is the subset of *math/rand.Rand used by the peer.
type Rand interface {
	Int63n(n int64) int64
}

// NewID derives a node id from a random value in [400000, 500000] plus the
// creation time in unix milliseconds. Later nodes tend to get higher ids.
func NewID(rng Rand, now time.Time) int64 {
	return idFloor + rng.Int63n(idSpan+1) + now.UnixMilli()
}

// Identity is the runtime state of a node. The id never changes; the leader
// pointer, role and election flag are guarded by mu.
type Identity struct {
	mu              sync.RWMutex
	role            cluster.Role
	id              int64
	leaderID        int64
	hasLeader       bool
	electionOngoing bool
}

func New(id int64) *Identity {
	return &Identity{id: id}
}

func (n *Identity) ID() int64 {
	return n.id
}

// Leader returns the known leader id.
func (n *Identity) Leader() (int64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.leaderID, n.hasLeader
}

// RequireLeader is Leader for callers that cannot proceed without one.
func (n *Identity) RequireLeader() (int64, error) {
	id, ok := n.Leader()
	if !ok {
		return 0, ErrNoLeader
	}
	return id, nil
}

// SetLeader records the leader and ends any election in progress.
func (n *Identity) SetLeader(id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leaderID = id
	n.hasLeader = true
	n.electionOngoing = false
}

func (n *Identity) ClearLeader() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leaderID = 0
	n.hasLeader = false
}

// IsLeader is true iff the known leader is this node.
func (n *Identity) IsLeader() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isLeaderLocked()
}

func (n *Identity) isLeaderLocked() bool {
	return n.hasLeader && n.leaderID == n.id
}

func (n *Identity) Role() cluster.Role {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.role
}

func (n *Identity) SetRole(r cluster.Role) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.role = r
}

func (n *Identity) ElectionOngoing() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.electionOngoing
}

// TryBeginElection sets the election flag and reports whether it was clear.
// A false result means another election on this node is still running.
func (n *Identity) TryBeginElection() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.electionOngoing {
		return false
	}
	n.electionOngoing = true
	return true
}

func (n *Identity) EndElection() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.electionOngoing = false
}

// IsElectionReady is true when the node is neither leading nor electing.
func (n *Identity) IsElectionReady() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !n.electionOngoing && !n.isLeaderLocked()
}

// Information is the snapshot served on the information route.
func (n *Identity) Information() cluster.NodeInformation {
	n.mu.RLock()
	defer n.mu.RUnlock()
	info := cluster.NodeInformation{
		NodeID:          n.id,
		IsLeader:        n.isLeaderLocked(),
		ElectionOngoing: n.electionOngoing,
		IsElectionReady: !n.electionOngoing && !n.isLeaderLocked(),
		Role:            n.role,
	}
	if n.hasLeader {
		info.LeaderID = n.leaderID
	}
	return info
}

// Readiness is the snapshot served on the election readiness route.
func (n *Identity) Readiness() cluster.ElectionReadiness {
	info := n.Information()
	return cluster.ElectionReadiness{
		IsElectionReady: info.IsElectionReady,
		InstanceID:      info.NodeID,
		IsLeader:        info.IsLeader,
	}
}
