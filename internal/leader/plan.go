package leader

import (
	"github.com/dreamware/primus/internal/cluster"
)

// Quotas is how many acceptors and learners a topology needs.
type Quotas struct {
	Acceptors int
	Learners  int
}

// DefaultQuotas are two acceptors and one learner.
var DefaultQuotas = Quotas{Acceptors: 2, Learners: 1}

// Plan assigns roles to the peers that have none. Peers are taken in the
// order given; the acceptor deficit is filled first, then the learner
// deficit, and everyone left becomes a proposer.
func Plan(peers []cluster.Peer, q Quotas) []cluster.RoleAssignment {
	needAcceptors, needLearners := q.Acceptors, q.Learners
	for _, p := range peers {
		switch p.Role {
		case cluster.RoleAcceptor:
			needAcceptors--
		case cluster.RoleLearner:
			needLearners--
		}
	}

	var out []cluster.RoleAssignment
	for _, p := range peers {
		if p.Role.Valid() {
			continue
		}

		role := cluster.RoleProposer
		switch {
		case needAcceptors > 0:
			role = cluster.RoleAcceptor
			needAcceptors--
		case needLearners > 0:
			role = cluster.RoleLearner
			needLearners--
		}
		out = append(out, cluster.RoleAssignment{NodeID: p.NodeID, Role: role, IP: p.IP, Port: p.Port})
	}
	return out
}

// Apply returns peers with the assignments applied.
func Apply(peers []cluster.Peer, assignments []cluster.RoleAssignment) []cluster.Peer {
	byID := make(map[int64]cluster.Role, len(assignments))
	for _, a := range assignments {
		byID[a.NodeID] = a.Role
	}

	out := make([]cluster.Peer, len(peers))
	for i, p := range peers {
		if r, ok := byID[p.NodeID]; ok {
			p.Role = r
		}
		out[i] = p
	}
	return out
}

// Partition splits the divisor space [0, number] into n contiguous ranges.
// Every range but the last is floor(number/n) wide; the last one ends at
// number.
func Partition(number int64, n int) []cluster.PrimeCheckRequest {
	if n <= 0 {
		return nil
	}

	size := number / int64(n)
	out := make([]cluster.PrimeCheckRequest, n)
	for i := 0; i < n; i++ {
		start := int64(i) * size
		end := int64(i+1)*size - 1
		if i == n-1 {
			end = number
		}
		out[i] = cluster.PrimeCheckRequest{Check: number, Start: start, End: end}
	}
	return out
}
