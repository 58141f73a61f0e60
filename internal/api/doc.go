// Package api serves the peer-to-peer protocol of one node.
//
// Every node serves the same router regardless of its role:
//
//	GET  /health                              liveness check used by the registry
//	GET  /information                         node id, leader, election state, role
//	POST /election                            a lower node hands over its election
//	GET  /election/ready                      readiness of this node for an election
//	POST /election/completed                  a leader announces itself
//	POST /alerts/role                         the leader assigns a role
//	POST /alerts/learner/proposer-count       the leader starts a learner round
//	POST /alerts/leader/consensus             the learner reports a verdict (leader only)
//	POST /actions/proposer/checks/prime       the leader assigns a sub-range
//	POST /actions/acceptor/accept-response    a proposer submits a verdict
//	POST /actions/learner/accept-response     an acceptor forwards a verified verdict
//	POST /actions/leader/error                an acceptor reports a wrong verdict (leader only)
//
// Calls that start further peer calls are acknowledged first and processed
// in the background, so a chain of calls never holds a request open on
// every hop.
package api
