package domain

import (
	"errors"
	"fmt"
)

var ErrInvariant = errors.New("session invariant violated")

// Snapshot is a read-only view of the session handed to observers.
type Snapshot struct {
	SessionID SessionID
	State     State
	RoomURL   RoomURL
	ClientID  ClientID
	Releasing bool
	// Fault holds a teardown failure the session could not recover from on its own.
	Fault string
}

func (s Snapshot) HasClient() bool {
	return !s.ClientID.IsZero()
}

// Validate checks that the client and the address are present exactly when
// the state needs them.
func (s Snapshot) Validate() error {
	if s.HasClient() != s.State.HasClient() {
		return fmt.Errorf("%w: state %s with client=%t", ErrInvariant, s.State, s.HasClient())
	}
	if s.State.HasClient() && s.RoomURL == "" {
		return fmt.Errorf("%w: state %s without room url", ErrInvariant, s.State)
	}
	if s.State == StateIdle && s.RoomURL != "" {
		return fmt.Errorf("%w: idle with room url %s", ErrInvariant, s.RoomURL)
	}
	return nil
}
