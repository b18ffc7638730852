package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
)

// RemoteClient is a call client whose SDK object lives in an agent tab.
type RemoteClient struct {
	id    domain.ClientID
	hub   *Hub
	agent Agent

	mu       sync.Mutex
	state    domain.MeetingState
	gone     bool
	nextID   port.HandlerID
	handlers map[domain.EventName]map[port.HandlerID]port.EventHandler
}

func newRemoteClient(id domain.ClientID, hub *Hub, agent Agent) *RemoteClient {
	return &RemoteClient{
		id:       id,
		hub:      hub,
		agent:    agent,
		state:    domain.MeetingNew,
		handlers: make(map[domain.EventName]map[port.HandlerID]port.EventHandler),
	}
}

func (c *RemoteClient) ID() domain.ClientID {
	return c.id
}

func (c *RemoteClient) call(ctx context.Context, cmd string, args any, out any) error {
	return c.hub.request(ctx, c.agent, c.id, cmd, args, out)
}

func (c *RemoteClient) Join(ctx context.Context, room domain.RoomURL, opts domain.JoinOptions) error {
	c.setState(domain.MeetingJoining)
	return c.call(ctx, CmdJoin, joinArgs{
		URL:               room.String(),
		AudioSource:       string(opts.AudioSource),
		VideoSource:       string(opts.VideoSource),
		DevicePermissions: string(opts.DevicePermissions),
	}, nil)
}

func (c *RemoteClient) Leave(ctx context.Context) error {
	return c.call(ctx, CmdLeave, nil, nil)
}

// Destroy releases the SDK object. A client whose agent is gone has nothing
// left to release.
func (c *RemoteClient) Destroy(ctx context.Context) error {
	defer c.hub.forget(c.id)
	c.mu.Lock()
	gone := c.gone
	c.mu.Unlock()
	if gone {
		return nil
	}
	err := c.call(ctx, CmdDestroy, nil, nil)
	if errors.Is(err, ErrAgentGone) {
		return nil
	}
	return err
}

func (c *RemoteClient) MeetingState() domain.MeetingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RemoteClient) On(name domain.EventName, h port.EventHandler) port.HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	if c.handlers[name] == nil {
		c.handlers[name] = make(map[port.HandlerID]port.EventHandler)
	}
	c.handlers[name][c.nextID] = h
	return c.nextID
}

func (c *RemoteClient) Off(name domain.EventName, id port.HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[name], id)
}

func (c *RemoteClient) SetNetworkTopology(ctx context.Context, t domain.Topology) error {
	return c.call(ctx, CmdSetTopology, topologyArgs{Topology: string(t)}, nil)
}

func (c *RemoteClient) SetLocalAudio(ctx context.Context, enabled bool) error {
	return c.call(ctx, CmdSetLocalAudio, enabledArgs{Enabled: enabled}, nil)
}

func (c *RemoteClient) SetLocalVideo(ctx context.Context, enabled bool) error {
	return c.call(ctx, CmdSetLocalVideo, enabledArgs{Enabled: enabled}, nil)
}

func (c *RemoteClient) SetInputDevices(ctx context.Context, in domain.InputDevices) error {
	return c.call(ctx, CmdSetInputDevices, in, nil)
}

func (c *RemoteClient) UpdateInputSettings(ctx context.Context, s domain.InputSettings) error {
	return c.call(ctx, CmdUpdateInputs, s, nil)
}

func (c *RemoteClient) EnumerateDevices(ctx context.Context) ([]domain.Device, error) {
	var out struct {
		Devices []domain.Device `json:"devices"`
	}
	if err := c.call(ctx, CmdEnumerateDevices, nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

func (c *RemoteClient) Participants(ctx context.Context) ([]domain.Participant, error) {
	var out struct {
		Participants []domain.Participant `json:"participants"`
	}
	if err := c.call(ctx, CmdParticipants, nil, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

func (c *RemoteClient) setState(s domain.MeetingState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *RemoteClient) agentGone() {
	c.mu.Lock()
	c.gone = true
	c.state = domain.MeetingError
	c.mu.Unlock()
}

func (c *RemoteClient) observe(msg Inbound) {
	ev := domain.Event{
		Name:     domain.EventName(msg.Event),
		ErrorMsg: msg.Error,
		FromID:   msg.FromID,
		Data:     msg.Data,
	}
	switch ev.Name {
	case domain.EventJoined:
		c.setState(domain.MeetingJoined)
	case domain.EventLeft:
		c.setState(domain.MeetingLeft)
	case domain.EventError:
		c.setState(domain.MeetingError)
	}
	if msg.MeetingState != "" {
		c.setState(domain.MeetingState(msg.MeetingState))
	}
	c.dispatch(ev)
}

func (c *RemoteClient) dispatch(ev domain.Event) {
	c.mu.Lock()
	hs := make([]port.EventHandler, 0, len(c.handlers[ev.Name]))
	for _, h := range c.handlers[ev.Name] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}
