package paxos

import "errors"

var (
	// ErrInvalidProposal is returned by Acceptor.Verify when the divisor of
	// a non-prime claim does not divide the number.
	ErrInvalidProposal = errors.New("paxos: invalid proposal")

	// ErrQuorumMismatch means the learner was asked for a consensus while
	// holding fewer or more responses than proposers.
	ErrQuorumMismatch = errors.New("paxos: response count does not match proposer count")

	// ErrMixedNumbers means the responses of one round name different numbers.
	ErrMixedNumbers = errors.New("paxos: responses for different numbers")

	// ErrNoRound is returned when a response arrives before the leader
	// announced the proposer count.
	ErrNoRound = errors.New("paxos: no round in progress")

	// ErrNoAcceptor is returned when a proposer finds no active acceptor.
	ErrNoAcceptor = errors.New("paxos: no acceptor available")
)
