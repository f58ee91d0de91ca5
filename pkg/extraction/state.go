package extraction

// State is the position of a cycle in the extraction state machine
type State int

const (
	StateModsDetected State = iota
	StateUndeploying
	StatePendingLaunch
	StateWaitingForExtraction
	StateRedeploying
	StateComplete
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateModsDetected:
		return "ModsDetected"
	case StateUndeploying:
		return "Undeploying"
	case StatePendingLaunch:
		return "PendingLaunch"
	case StateWaitingForExtraction:
		return "WaitingForExtraction"
	case StateRedeploying:
		return "Redeploying"
	case StateComplete:
		return "Complete"
	case StateError:
		return "Error"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Finished reports whether the cycle is over. Error is not finished: the
// checkpoint is still pending until the user redeploys or discards.
func (s State) Finished() bool {
	return s == StateComplete || s == StateCancelled
}

// Settled reports whether Wait returns in this state
func (s State) Settled() bool {
	return s.Finished() || s == StateError
}

var transitions = map[State][]State{
	StateModsDetected:         {StateUndeploying, StateCancelled, StateError},
	StateUndeploying:          {StatePendingLaunch, StateError},
	StatePendingLaunch:        {StateWaitingForExtraction, StateRedeploying, StateError},
	StateWaitingForExtraction: {StateRedeploying, StateError},
	StateRedeploying:          {StateComplete, StateCancelled, StateError},
	StateError:                {StateRedeploying, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
