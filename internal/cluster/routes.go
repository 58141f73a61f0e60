package cluster

// Routes served by every node.
const (
	PathHealth            = "/health"
	PathInformation       = "/information"
	PathElection          = "/election"
	PathElectionReady     = "/election/ready"
	PathElectionCompleted = "/election/completed"
	PathRoleAlert         = "/alerts/role"
	PathProposerCount     = "/alerts/learner/proposer-count"
	PathLeaderConsensus   = "/alerts/leader/consensus"
	PathProposerCheck     = "/actions/proposer/checks/prime"
	PathAcceptorResponse  = "/actions/acceptor/accept-response"
	PathLearnerResponse   = "/actions/learner/accept-response"
	PathLeaderError       = "/actions/leader/error"
)

// DestinationHeader names the peer a relayed request is meant for.
const DestinationHeader = "Destination"

// RequestIDHeader carries the correlation id of a peer call.
const RequestIDHeader = "X-Request-Id"
