package cluster

import "fmt"

// VerdictKind tags a PrimeVerdict.
type VerdictKind string

const (
	KindPrime    VerdictKind = "prime"
	KindNonPrime VerdictKind = "non-prime"

	// KindUnresolved is only written to the results file when a number is
	// abandoned after too many failed rounds.
	KindUnresolved VerdictKind = "unresolved"
)

// PrimeCheckRequest assigns the inclusive divisor range [Start, End] of
// Check to one proposer.
type PrimeCheckRequest struct {
	Check int64 `json:"check"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (r PrimeCheckRequest) String() string {
	return fmt.Sprintf("%d[%d..%d]", r.Check, r.Start, r.End)
}

// Verdict is the result of scanning one sub-range. Divisor is only set for
// KindNonPrime and is zero when the number is below 2.
type Verdict struct {
	Kind    VerdictKind `json:"action"`
	Number  int64       `json:"number"`
	Start   int64       `json:"start"`
	End     int64       `json:"end"`
	Divisor int64       `json:"divisibleBy,omitempty"`
}

// Prime builds a prime verdict for the scanned range.
func Prime(number, start, end int64) Verdict {
	return Verdict{Kind: KindPrime, Number: number, Start: start, End: end}
}

// NonPrime builds a non-prime verdict with the divisor that was found.
func NonPrime(number, start, end, divisor int64) Verdict {
	return Verdict{Kind: KindNonPrime, Number: number, Start: start, End: end, Divisor: divisor}
}

// Request returns the check request the verdict answers.
func (v Verdict) Request() PrimeCheckRequest {
	return PrimeCheckRequest{Check: v.Number, Start: v.Start, End: v.End}
}

// LearnerResponse is an acceptor-verified verdict of one proposer.
type LearnerResponse struct {
	CheckedNumber int64       `json:"checkedNumber"`
	Type          VerdictKind `json:"type"`
	CheckedBy     int64       `json:"checkedBy"`
}

// ConsensusResult is the final verdict for a number.
type ConsensusResult struct {
	Number int64       `json:"number"`
	Type   VerdictKind `json:"type"`
}

// Request and response bodies of the peer-to-peer calls.
type (
	ElectionInvokeRequest struct {
		InvokeNodeID int64 `json:"invokeNodeId"`
	}

	LeaderElectedRequest struct {
		LeaderID int64 `json:"leaderId"`
	}

	RoleAlertRequest struct {
		Role Role `json:"role"`
	}

	RoleAlertResponse struct {
		Role Role  `json:"role"`
		ID   int64 `json:"id"`
	}

	ProposerCountRequest struct {
		ProposerCount int `json:"proposerCount"`
	}

	AcceptorRequest struct {
		PrimeResponse Verdict `json:"primeResponse"`
		ProposedBy    int64   `json:"proposedBy"`
	}

	LearnerRequest struct {
		Result LearnerResponse `json:"result"`
	}

	ConsensusRequest struct {
		Consensus ConsensusResult `json:"consensus"`
	}

	LeaderErrorRequest struct {
		Request PrimeCheckRequest `json:"request"`
		Type    string            `json:"type"`
		MadeBy  int64             `json:"madeBy"`
	}

	Ack struct {
		Message string `json:"message"`
	}
)

// ErrorTypePrimeCheck tags leader error reports raised by acceptors.
const ErrorTypePrimeCheck = "PRIME_CHECK"
