// Package leader holds the duties of the elected peer: assigning roles to
// the other peers and driving the verification of the backlog one number
// at a time.
//
// # Roles
//
// Roles are handed out greedily in node id order. Peers that already hold a
// role keep it; the rest fill the acceptor quota, then the learner quota,
// and every remaining peer becomes a proposer. The leader itself never
// takes a role, and clears its own when it takes office. After assigning,
// the RoleScheduler primes the role cache with the new lists and tells the
// learner how many proposers to expect.
//
// # Work
//
// Each number's divisor space [0, n] is split into one contiguous range per
// proposer. When an acceptor reports a bad verdict the offending proposer
// is asked to recompute its range; after too many errors the whole round is
// restarted, and after too many restarts the number is recorded as
// unresolved and the leader moves on. A proposer that has left the registry
// drops the cached role lists and restarts the round over the proposers
// that remain.
//
//	DispatchNext ──▶ Dispatch ──▶ proposers ... learner ──▶ HandleConsensus
//	                    ▲                                         │
//	                    └── reround ◀── HandleError / Expire      ▼
//	                                                       next number
//
// # Runtime
//
// Runtime starts the duties when the node wins an election and stops them
// when it steps down. While running it ticks at the stall retry interval:
// a number that found no proposers is dispatched again, and a round that
// has waited longer than the round timeout for its consensus is restarted.
package leader
