// Package cluster defines the wire vocabulary shared by every Primus peer:
// peer descriptors, roles, prime check requests and verdicts, learner
// responses, consensus results and the request bodies of each peer-to-peer
// call, together with the route constants every node serves.
//
// # Topology
//
// Primus runs as a flat set of peers that discover each other through a
// service registry. One peer is elected leader with the Bully algorithm;
// the leader assigns every other peer one of three roles and drives the
// verification of numbers read from a backlog:
//
//	                ┌──────────────┐
//	                │   Registry   │
//	                └──────┬───────┘
//	                       │ list / health / metadata
//	      ┌────────────────┼────────────────┐
//	┌─────▼─────┐    ┌─────▼─────┐    ┌─────▼─────┐
//	│  Leader   │───▶│ Proposers │───▶│ Acceptors │
//	│           │    └───────────┘    └─────┬─────┘
//	│           │◀── consensus ──┌──────────▼┐
//	│           │                │  Learner  │
//	└───────────┘                └───────────┘
//
// # Communication Protocol
//
// All calls are HTTP/JSON. Peers reach each other either directly or through
// a sidecar relay that forwards a request to the host named in its
// Destination header. Every outbound call carries an X-Request-Id.
//
// Election:
//   - POST /election           ask a higher node to run its own election
//   - POST /election/completed announce the elected leader
//   - GET  /election/ready     readiness of this node for an election
//   - GET  /information        identity, leader pointer and role
//
// Roles and work:
//   - POST /alerts/role                    assign a role
//   - POST /alerts/learner/proposer-count  start a learner round
//   - POST /actions/proposer/checks/prime  scan a divisor sub-range
//   - POST /actions/acceptor/accept-response
//   - POST /actions/learner/accept-response
//   - POST /alerts/leader/consensus        final verdict for a number
//   - POST /actions/leader/error           report an invalid proposal
//
// The helpers in http.go send and decode these bodies with a shared client
// whose timeout is 5s.
package cluster
