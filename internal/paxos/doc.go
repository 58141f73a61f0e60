// Package paxos implements the three verification roles that run on
// follower peers: Proposer, Acceptor and Learner.
//
// # Overview
//
// The leader verifies its backlog one number at a time. For each number it
// splits the divisor space into one contiguous sub-range per proposer and
// posts every sub-range to its proposer. What happens next runs entirely
// on the followers:
//
//	           leader
//	             │ POST /proposer/check  {check, start, end}
//	   ┌─────────┼─────────┐
//	   ▼         ▼         ▼
//	Proposer  Proposer  Proposer      scan [start, end] for a divisor
//	   │         │         │
//	   │ POST /acceptor/response (random acceptor each)
//	   ▼         ▼         ▼
//	 Acceptor A       Acceptor B       re-check non-prime claims
//	   │                  │
//	   └───────┬──────────┘
//	           ▼ POST /learner/response
//	        Learner                    one response per proposer
//	           │
//	           ▼ POST /leader/consensus
//	         leader                    record, move to the next number
//
// Despite the name this is not general Paxos. There is one proposal value
// per round, no ballots and no competing proposers for the same value; the
// names describe who proposes a verdict, who vets it and who learns the
// outcome.
//
// # Primality Scan
//
// Check scans the divisors of a number within [max(2, start),
// min(isqrt(number), end)] and returns the first divisor it finds as a
// non-prime verdict. Divisors above the integer square root are never
// needed: a composite number always has a factor at or below it. A range
// that lies entirely above the root, or that is empty because start > end,
// yields a prime verdict for that slice. Numbers below 2 are non-prime and
// carry divisor 0.
//
// The square root is computed in floating point and then corrected by
// integer steps, so the bound is exact for every int64.
//
// # Proposer
//
// A Proposer computes the verdict of its range and sends it to one of the
// active acceptors, picked at random (WithPicker replaces the choice in
// tests). Verdicts are cached per (number, start, end) for the result TTL,
// so a range that the leader asks for again after an error is answered
// without another scan. A verdict that cannot be delivered is still
// returned to the caller; the leader's retry rules recover from it.
//
// # Acceptor
//
// An Acceptor trusts prime claims and re-checks non-prime ones. A non-prime
// claim holds when its divisor is a proper factor of the number, in
// [2, number-1]. Divisor 1, the number itself and negative factors divide
// evenly but prove nothing and are rejected. Below 2 the claim must carry
// divisor 0.
//
// A rejected claim never reaches the learner. The acceptor reports it to
// the leader on /leader/error with the offending proposer's id, and the
// leader asks that proposer to recompute. Accepted claims are forwarded to
// the learner of the current topology.
//
// Prime claims are forwarded without re-scanning. A proposer that wrongly
// claims a composite number is prime is therefore never caught; only false
// divisors are.
//
// # Learner
//
// The Learner holds the round state:
//
//	proposerCount   set by the leader on /proposer/count
//	responses       accepted responses of the round
//	seen            proposers already heard from
//
// SetProposerCount starts a round and abandons any round in progress. Each
// response is recorded at most once per proposer; a duplicate from the same
// proposer is ignored, and so is anything that arrives after the round is
// complete. A response that arrives before any count was announced gets
// ErrNoRound.
//
// When the last expected response arrives the learner computes the
// consensus: non-prime if any response says so, prime otherwise. All
// responses must be about the same number (ErrMixedNumbers) and their
// count must match the proposer count (ErrQuorumMismatch). Adding the final
// response, computing the consensus and clearing the round happen under
// one lock, so a new proposer count cannot interleave with them.
//
// The consensus is then posted to the leader. The round is cleared even
// when that report fails; the leader restarts rounds that stay silent past
// its round timeout, so a lost report costs one round and never the
// number.
//
// # Errors
//
//	ErrInvalidProposal   a verdict failed the acceptor's check
//	ErrQuorumMismatch    consensus asked for with the wrong response count
//	ErrMixedNumbers      responses of one round disagree on the number
//	ErrNoRound           no proposer count announced yet
//	ErrNoAcceptor        a proposer found no acceptor to send to
//
// Lookup failures come from the registry package (ErrLearnerUnavailable,
// ErrInstanceNotFound) and a follower that knows no leader yet gets
// node.ErrNoLeader when it needs to report.
//
// # Concurrency
//
// Proposer and Acceptor are stateless apart from the verdict cache and may
// serve any number of requests at once. The Learner serializes all round
// state behind one mutex and performs its network report outside it.
package paxos
