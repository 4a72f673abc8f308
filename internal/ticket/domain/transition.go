package domain

// Outcome is the payment result reported for a ticket's authorization.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeRefunded  Outcome = "refunded"
)

type Decision struct {
	Next Status
	// IncrementAttendees is set only for the pending -> confirmed edge.
	IncrementAttendees bool
	Changed            bool
}

// Decide maps a payment outcome onto the ticket state machine:
// pending -> confirmed | failed, pending|confirmed -> refunded. Terminal
// states and already-applied outcomes yield an unchanged decision.
func Decide(outcome Outcome, current Status) Decision {
	unchanged := Decision{Next: current}
	switch outcome {
	case OutcomeSucceeded:
		if current == StatusPending {
			return Decision{Next: StatusConfirmed, IncrementAttendees: true, Changed: true}
		}
	case OutcomeFailed:
		if current == StatusPending {
			return Decision{Next: StatusFailed, Changed: true}
		}
	case OutcomeRefunded:
		if current == StatusPending || current == StatusConfirmed {
			return Decision{Next: StatusRefunded, Changed: true}
		}
	}
	return unchanged
}

func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}
