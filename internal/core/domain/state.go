package domain

// State is the lifecycle state of the page's call session.
type State string

const (
	StateIdle     State = "idle"
	StateCreating State = "creating"
	StateJoining  State = "joining"
	StateJoined   State = "joined"
	StateLeaving  State = "leaving"
	StateError    State = "error"
)

// HasClient reports whether a call client must exist in this state.
func (s State) HasClient() bool {
	switch s {
	case StateJoining, StateJoined, StateLeaving, StateError:
		return true
	}
	return false
}

// ShowCall reports whether the call UI stays mounted.
func (s State) ShowCall() bool {
	return s == StateJoining || s == StateJoined || s == StateError
}

// CallControlsEnabled gates the leave affordance. Destroying a client before
// it reported a join is undefined in the vendor SDK, hence Joined/Error only.
func (s State) CallControlsEnabled() bool {
	return s == StateJoined || s == StateError
}

// StartEnabled gates the start affordance: one client at a time.
func (s State) StartEnabled() bool {
	return s == StateIdle
}

func (s State) String() string {
	return string(s)
}
