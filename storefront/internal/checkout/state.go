package checkout

type State string

const (
	StateContact   State = "contact"
	StateDelivery  State = "delivery"
	StateReview    State = "review"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateEmpty     State = "empty"
)

// IsTerminal reports states with no forward step. Failed still allows Back and
// a retried Confirm.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateEmpty
}

// Step is the 1-based form step shown for s, or 0 outside the form.
func (s State) Step() int {
	switch s {
	case StateContact:
		return 1
	case StateDelivery:
		return 2
	case StateReview, StateFailed:
		return 3
	}
	return 0
}

// String representation (for logging)
func (s State) String() string {
	return string(s)
}
