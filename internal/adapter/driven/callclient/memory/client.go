// Package memory provides an in-process stand-in for the vendor call SDK.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
)

var (
	ErrDestroyed     = errors.New("call client destroyed")
	ErrNotInMeeting  = errors.New("not in a meeting")
	ErrAlreadyJoined = errors.New("join already called")
)

type Config struct {
	JoinDelay    time.Duration
	LeaveDelay   time.Duration
	DestroyDelay time.Duration
	// FailRooms lists room names whose join reports an error.
	FailRooms []string
	// HangDestroy makes Destroy block until its context ends.
	HangDestroy bool
	// RejectJoin, when set, is returned by every Join.
	RejectJoin error
}

// Factory creates simulated clients and counts how many are alive.
type Factory struct {
	cfg Config

	mu      sync.Mutex
	live    int
	maxLive int
	clients []*Client
}

func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) NewClient(ctx context.Context, id domain.ClientID) (port.CallClient, error) {
	c := &Client{
		id:       id,
		factory:  f,
		state:    domain.MeetingNew,
		handlers: make(map[domain.EventName]map[port.HandlerID]port.EventHandler),
		audio:    true,
		video:    true,
	}
	f.mu.Lock()
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// MaxLive is the highest number of simultaneously live clients seen.
func (f *Factory) MaxLive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLive
}

func (f *Factory) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.clients...)
}

// Last returns the most recently created client, or nil.
func (f *Factory) Last() *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}

func (f *Factory) released() {
	f.mu.Lock()
	f.live--
	f.mu.Unlock()
}

func (f *Factory) failing(room domain.RoomURL) bool {
	name := room.Name()
	for _, r := range f.cfg.FailRooms {
		if r == name {
			return true
		}
	}
	return false
}

type Client struct {
	id      domain.ClientID
	factory *Factory

	mu        sync.Mutex
	state     domain.MeetingState
	room      domain.RoomURL
	destroyed bool
	nextID    port.HandlerID
	handlers  map[domain.EventName]map[port.HandlerID]port.EventHandler
	audio     bool
	video     bool
	input     domain.InputDevices
	settings  domain.InputSettings
	topology  domain.Topology
	joinOpts  domain.JoinOptions
	leaves    int
}

func (c *Client) ID() domain.ClientID {
	return c.id
}

func (c *Client) Join(ctx context.Context, room domain.RoomURL, opts domain.JoinOptions) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.state != domain.MeetingNew && c.state != domain.MeetingLeft {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	if err := c.factory.cfg.RejectJoin; err != nil {
		c.state = domain.MeetingError
		c.mu.Unlock()
		return err
	}
	c.state = domain.MeetingJoining
	c.room = room
	c.joinOpts = opts
	c.audio = opts.AudioSource != domain.InputOff
	c.video = opts.VideoSource != domain.InputOff
	c.mu.Unlock()

	fail := c.factory.failing(room)
	time.AfterFunc(c.factory.cfg.JoinDelay, func() {
		if fail {
			c.transition(domain.MeetingError, domain.Event{
				Name:     domain.EventError,
				ErrorMsg: fmt.Sprintf("room %s rejected the join", room.Name()),
			})
			return
		}
		c.transition(domain.MeetingJoined, domain.Event{Name: domain.EventJoined})
	})
	return nil
}

func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.state != domain.MeetingJoined && c.state != domain.MeetingError {
		c.mu.Unlock()
		return ErrNotInMeeting
	}
	c.leaves++
	c.mu.Unlock()

	time.AfterFunc(c.factory.cfg.LeaveDelay, func() {
		c.transition(domain.MeetingLeft, domain.Event{Name: domain.EventLeft})
	})
	return nil
}

func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.factory.cfg.HangDestroy {
		<-ctx.Done()
		return ctx.Err()
	}
	if d := c.factory.cfg.DestroyDelay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.state = domain.MeetingLeft
	c.mu.Unlock()
	c.factory.released()
	return nil
}

func (c *Client) LeaveCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaves
}

func (c *Client) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Client) MeetingState() domain.MeetingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) On(name domain.EventName, h port.EventHandler) port.HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	if c.handlers[name] == nil {
		c.handlers[name] = make(map[port.HandlerID]port.EventHandler)
	}
	c.handlers[name][c.nextID] = h
	return c.nextID
}

func (c *Client) Off(name domain.EventName, id port.HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers[name], id)
}

// HandlerCount is the number of handlers still registered, all events included.
func (c *Client) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, hs := range c.handlers {
		n += len(hs)
	}
	return n
}

// Emit delivers ev to the registered handlers as if the SDK raised it.
func (c *Client) Emit(ev domain.Event) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	hs := make([]port.EventHandler, 0, len(c.handlers[ev.Name]))
	for _, h := range c.handlers[ev.Name] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (c *Client) transition(state domain.MeetingState, ev domain.Event) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.Emit(ev)
}

func (c *Client) SetNetworkTopology(ctx context.Context, t domain.Topology) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	if c.state != domain.MeetingJoined {
		return ErrNotInMeeting
	}
	c.topology = t
	return nil
}

func (c *Client) Topology() domain.Topology {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topology
}

func (c *Client) SetLocalAudio(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.audio = enabled
	return nil
}

func (c *Client) SetLocalVideo(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	c.video = enabled
	return nil
}

func (c *Client) SetInputDevices(ctx context.Context, in domain.InputDevices) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	if in.AudioSource != "" || in.AudioDeviceID != "" {
		c.input.AudioSource, c.input.AudioDeviceID = in.AudioSource, in.AudioDeviceID
		c.audio = in.AudioSource != domain.InputOff
	}
	if in.VideoSource != "" || in.VideoDeviceID != "" {
		c.input.VideoSource, c.input.VideoDeviceID = in.VideoSource, in.VideoDeviceID
		c.video = in.VideoSource != domain.InputOff
	}
	return nil
}

func (c *Client) UpdateInputSettings(ctx context.Context, s domain.InputSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	if s.Video != "" {
		c.settings.Video, c.settings.BlurStrength, c.settings.BackgroundImage = s.Video, s.BlurStrength, s.BackgroundImage
	}
	if s.Audio != "" {
		c.settings.Audio = s.Audio
	}
	return nil
}

func (c *Client) InputSettings() domain.InputSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *Client) Input() domain.InputDevices {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

func (c *Client) EnumerateDevices(ctx context.Context) ([]domain.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	return []domain.Device{
		{ID: "mic-0", Kind: domain.DeviceAudioInput, Label: "Simulated microphone"},
		{ID: "speaker-0", Kind: domain.DeviceAudioOutput, Label: "Simulated speaker"},
		{ID: "cam-0", Kind: domain.DeviceVideoInput, Label: "Simulated camera"},
	}, nil
}

func (c *Client) Participants(ctx context.Context) ([]domain.Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	if c.state != domain.MeetingJoined {
		return nil, nil
	}
	return []domain.Participant{
		{ID: "local", Local: true, Audio: trackState(c.audio), Video: trackState(c.video)},
		{ID: "remote-1", Audio: trackState(true), Video: trackState(true)},
	}, nil
}

func trackState(on bool) domain.TrackState {
	if on {
		return domain.TrackState{State: "playable"}
	}
	return domain.TrackState{State: "off", Off: true}
}

func (c *Client) JoinOptions() domain.JoinOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinOpts
}
