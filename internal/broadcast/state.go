package broadcast

// State is a step of the broadcast/confirm protocol.
type State int

const (
	StateBuilt State = iota
	StateSimulated
	StateBroadcast
	StateConfirming
	StateConfirmed
	StateExpired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "BUILT"
	case StateSimulated:
		return "SIMULATED"
	case StateBroadcast:
		return "BROADCAST"
	case StateConfirming:
		return "CONFIRMING"
	case StateConfirmed:
		return "CONFIRMED"
	case StateExpired:
		return "EXPIRED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transition follows s within an attempt.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateExpired || s == StateFailed
}

// Transition is reported to the hook on every state change.
type Transition struct {
	Attempt   int
	Signature string
	From      State
	To        State
}
