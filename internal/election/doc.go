// Package election elects one leader among the registered peers with the
// Bully algorithm: the highest node id that is alive and ready wins, unless
// a leader is already sitting, in which case that leader is kept.
//
// # Overview
//
// Every peer runs one Coordinator. The Coordinator owns no state of its
// own beyond timers; the leader pointer, the election flag and the role
// live in node.Identity, which the HTTP surface also reads to answer the
// information and readiness routes. The registry supplies the membership
// list, and the transport carries the three election calls:
//
//	GET  /information          state of a peer (isLeader, isElectionReady, ...)
//	POST /election             a lower peer hands its election upward
//	POST /election/completed   the winner announces itself
//
// Node ids grow with join time (a random value plus the unix millisecond
// clock), so a late joiner usually carries the highest id. Adopting a
// sitting leader before comparing ids keeps a running cluster from being
// taken over by every new peer.
//
// # Election Round
//
// StartElection runs one round on the calling goroutine:
//
//	┌──────────────────────────────┐
//	│ TryBeginElection             │── flag already set ──▶ return
//	└──────────────┬───────────────┘
//	               ▼
//	┌──────────────────────────────┐
//	│ this node is the leader?     │── yes ──▶ clear flag, return
//	└──────────────┬───────────────┘
//	               ▼
//	┌──────────────────────────────┐
//	│ list active peers, ask each  │
//	│ for /information             │  (unreachable peers are left out)
//	└──────────────┬───────────────┘
//	               ▼
//	┌──────────────────────────────┐
//	│ some peer reports isLeader?  │── yes ──▶ adopt it
//	└──────────────┬───────────────┘
//	               ▼
//	┌──────────────────────────────┐
//	│ any peer with a higher id?   │── no ───▶ become leader, broadcast
//	└──────────────┬───────────────┘
//	               ▼
//	┌──────────────────────────────┐
//	│ any higher peer ready?       │── no ───▶ clear flag, drop round
//	└──────────────┬───────────────┘
//	               ▼
//	  POST /election to every higher peer,
//	  arm the delegation timer
//
// The node's own state is part of the candidate set. A leader that is asked
// to run an election therefore ends it at once instead of racing its own
// followers, and a leader that receives an election invocation answers the
// invoker with a leader announcement so that the invoker's round ends too.
//
// Peers that do not answer /information, and peers the registry marks
// critical, never appear in the candidate set. A dead high node cannot
// block an election.
//
// # The Election Flag
//
// node.Identity carries an electionOngoing flag that serializes rounds on
// one node. TryBeginElection sets it atomically, so concurrent invocations
// collapse into one round. The flag is cleared when:
//
//   - a leader becomes known (adopted, announced or self-elected),
//   - no higher peer is ready to take the election over,
//   - the registry cannot be listed,
//   - the delegation timeout fires without an announcement.
//
// A peer with the flag set reports itself not election-ready, and so does
// the leader. A round that finds only unready higher peers gives up rather
// than electing itself over them; one of those peers is already running a
// round that will produce the announcement.
//
// # Delegation Timeout
//
// After handing the round upward the node waits for /election/completed.
// If the higher peers crash mid-round no announcement arrives, so every
// delegation arms a timer (30 s by default). Each timer is tagged with an
// epoch; a timer that fires after a newer delegation, or after a leader was
// learned, does nothing. A live timer clears the flag and starts a new
// round, which sees the current membership.
//
// # Joining
//
// OnRegistered runs once after the peer has registered. It asks the active
// peers for a sitting leader right away and adopts it when one answers.
// Only when nobody leads does it wait a randomized 5-15 s and then start an
// election, which spreads out the rounds of peers that booted together.
// A leader learned during that wait cancels the election.
//
// # Leader Watch
//
// WatchLeader polls the registry health of the known leader every 40-60 s.
// A leader that is critical, or that has been deregistered, is forgotten
// and a new round starts. A peer with no leader at all also starts a round
// on each poll, which repairs a cluster whose earlier rounds were all
// dropped. The leader itself skips the check.
//
// # Leader Hooks
//
// WithLeaderHooks connects the Coordinator to the leader duties:
//
//	onLeader(ctx)   called after this node elects itself and broadcasts
//	onFollower()    called whenever another node is adopted as leader
//
// onLeader receives a context that is cancelled by Stop, so the duties it
// starts end with the Coordinator.
//
// # Timing and Testing
//
// Every delay goes through an injectable timer (WithTimer) and random
// source (WithRand). Tests drive elections with a manual timer that fires
// only on request, over the in-memory transport and registry catalog, and
// simulate many peers in one process without wall-clock sleeps.
//
// # Shutdown
//
// Stop cancels the shared context, which wakes every pending timer, and
// waits for the background goroutines to return. Work requested after Stop
// is ignored.
package election
