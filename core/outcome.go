package core

// Outcome is the terminal result of one negotiation round.
type Outcome int

const (
	// OutcomeTraded means a trade was agreed and this side's settlement succeeded.
	OutcomeTraded Outcome = iota + 1
	// OutcomeNoDeal means the round ended without an acceptable offer or was rejected.
	OutcomeNoDeal
	// OutcomeRefused means the responder could not satisfy the request.
	OutcomeRefused
	// OutcomeFailed means the round aborted on timeout, decode, transport or settlement errors.
	OutcomeFailed
)

// String returns the lower-case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeTraded:
		return "traded"
	case OutcomeNoDeal:
		return "no-deal"
	case OutcomeRefused:
		return "refused"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
