package port

import (
	"context"

	"github.com/Wyydra/callctl/internal/core/domain"
)

type EventHandler func(ev domain.Event)

// HandlerID identifies a registration made with CallClient.On.
type HandlerID uint64

// CallClient is one connection of the vendor call SDK.
type CallClient interface {
	ID() domain.ClientID
	Join(ctx context.Context, room domain.RoomURL, opts domain.JoinOptions) error
	Leave(ctx context.Context) error
	Destroy(ctx context.Context) error
	MeetingState() domain.MeetingState

	On(name domain.EventName, h EventHandler) HandlerID
	Off(name domain.EventName, id HandlerID)

	// Device and track control, used by debug commands only.
	SetNetworkTopology(ctx context.Context, t domain.Topology) error
	SetLocalAudio(ctx context.Context, enabled bool) error
	SetLocalVideo(ctx context.Context, enabled bool) error
	SetInputDevices(ctx context.Context, in domain.InputDevices) error
	UpdateInputSettings(ctx context.Context, s domain.InputSettings) error
	EnumerateDevices(ctx context.Context) ([]domain.Device, error)
	Participants(ctx context.Context) ([]domain.Participant, error)
}

type CallClientFactory interface {
	NewClient(ctx context.Context, id domain.ClientID) (CallClient, error)
}
