package cluster

import (
	"fmt"
	"net"
	"strconv"
)

// Role is the protocol role a peer plays in a verification round.
type Role string

const (
	RoleNone     Role = ""
	RoleProposer Role = "proposer"
	RoleAcceptor Role = "acceptor"
	RoleLearner  Role = "learner"
)

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleProposer, RoleAcceptor, RoleLearner:
		return true
	}
	return false
}

// HealthStatus mirrors the aggregated status reported by the registry.
type HealthStatus string

const (
	HealthPassing  HealthStatus = "passing"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// Peer is a read-only snapshot of a registered node.
type Peer struct {
	NodeID int64        `json:"nodeId"`
	IP     string       `json:"ip"`
	Port   int          `json:"port"`
	Role   Role         `json:"role,omitempty"`
	Health HealthStatus `json:"health,omitempty"`
}

// Addr returns the host:port the peer listens on.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

func (p Peer) String() string {
	return fmt.Sprintf("%d@%s", p.NodeID, p.Addr())
}

// RoleAssignment is produced by the leader for every peer that had no role.
type RoleAssignment struct {
	NodeID int64  `json:"nodeId"`
	Role   Role   `json:"role"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`
}

// Addr returns the host:port of the assigned peer.
func (a RoleAssignment) Addr() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// NodeInformation is served by every node on the information route.
type NodeInformation struct {
	NodeID          int64 `json:"nodeId"`
	LeaderID        int64 `json:"leaderId,omitempty"`
	IsLeader        bool  `json:"isLeader"`
	ElectionOngoing bool  `json:"electionOngoing"`
	IsElectionReady bool  `json:"isElectionReady"`
	Role            Role  `json:"role,omitempty"`
}

// ElectionReadiness is served on the election readiness route.
type ElectionReadiness struct {
	IsElectionReady bool  `json:"isElectionReady"`
	InstanceID      int64 `json:"instanceId"`
	IsLeader        bool  `json:"isLeader"`
}
