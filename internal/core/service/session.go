package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const inboxSize = 64

type SessionConfig struct {
	JoinOptions    domain.JoinOptions
	ReleaseTimeout time.Duration
}

type Option func(*SessionController)

func WithAddressBar(a port.AddressBar) Option {
	return func(c *SessionController) { c.address = a }
}

func WithObserver(o port.SessionObserver) Option {
	return func(c *SessionController) { c.observers = append(c.observers, o) }
}

func WithMessageSink(s port.MessageSink) Option {
	return func(c *SessionController) { c.messages = s }
}

func WithMetrics(m port.Metrics) Option {
	return func(c *SessionController) { c.metrics = m }
}

// SessionController owns the page's single call session. Every transition
// runs on the Run goroutine, one event at a time, in arrival order.
type SessionController struct {
	provisioner port.RoomProvisioner
	factory     port.CallClientFactory
	address     port.AddressBar
	observers   []port.SessionObserver
	messages    port.MessageSink
	metrics     port.Metrics
	cfg         SessionConfig

	inbox    chan func()
	done     chan struct{}
	stopOnce sync.Once
	runCtx   context.Context
	cancel   context.CancelFunc

	// owned by the Run goroutine
	state     domain.State
	sessionID domain.SessionID
	room      domain.RoomURL
	client    port.CallClient
	sub       *subscription
	releasing bool
	closing   bool
	fault     string
	pageURL   string
	shownURL  string

	mu   sync.RWMutex
	snap domain.Snapshot
}

func NewSessionController(provisioner port.RoomProvisioner, factory port.CallClientFactory, cfg SessionConfig, opts ...Option) *SessionController {
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &SessionController{
		provisioner: provisioner,
		factory:     factory,
		metrics:     port.NopMetrics{},
		cfg:         cfg,
		inbox:       make(chan func(), inboxSize),
		done:        make(chan struct{}),
		runCtx:      ctx,
		cancel:      cancel,
		state:       domain.StateIdle,
		sessionID:   domain.NewSessionID(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snap = c.snapshot()
	return c
}

func (c *SessionController) Run() {
	for {
		select {
		case <-c.done:
			log.Info().Msg("Session controller stopped")
			return
		case fn := <-c.inbox:
			fn()
		}
	}
}

// StartCall provisions a new room and joins it. It is a no-op returning
// ErrBusy unless the session is idle.
func (c *SessionController) StartCall(ctx context.Context) error {
	return c.do(ctx, c.startCall)
}

// LeaveCall leaves a joined call, or releases the client of an errored one.
func (c *SessionController) LeaveCall(ctx context.Context) error {
	return c.do(ctx, c.leaveCall)
}

// LoadPage records the page address and joins the room it carries, if any.
func (c *SessionController) LoadPage(ctx context.Context, pageURL string) error {
	return c.do(ctx, func() error { return c.loadPage(pageURL) })
}

// CurrentClient hands out the live client for debug commands.
func (c *SessionController) CurrentClient(ctx context.Context) (port.CallClient, error) {
	var client port.CallClient
	err := c.do(ctx, func() error {
		if c.client == nil || c.releasing {
			return ErrNoClient
		}
		client = c.client
		return nil
	})
	return client, err
}

func (c *SessionController) Snapshot() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Close tears the session down as a page unload would: the live client, if
// any, is released before the loop stops.
func (c *SessionController) Close(ctx context.Context) error {
	err := c.do(ctx, func() error {
		c.closing = true
		switch {
		case c.client == nil:
			c.stop()
		case !c.releasing:
			c.release()
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if f := c.Snapshot().Fault; f != "" {
		return fmt.Errorf("%w: %s", ErrReleaseTimeout, f)
	}
	return nil
}

func (c *SessionController) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- func() { reply <- fn() }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues an asynchronous completion for the loop.
func (c *SessionController) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

func (c *SessionController) stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}

func (c *SessionController) logger() zerolog.Logger {
	l := log.With().Str("session_id", c.sessionID.String()).Str("state", c.state.String())
	if c.client != nil {
		l = l.Str("client_id", c.client.ID().String())
	}
	return l.Logger()
}

func (c *SessionController) startCall() error {
	if c.closing {
		return ErrClosed
	}
	if c.state != domain.StateIdle {
		return ErrBusy
	}
	c.sessionID = domain.NewSessionID()
	c.setState(domain.StateCreating)

	ctx := c.runCtx
	go func() {
		room, err := c.provisioner.CreateRoom(ctx)
		c.post(func() { c.provisioned(room, err) })
	}()
	return nil
}

func (c *SessionController) provisioned(room domain.RoomURL, err error) {
	l := c.logger()
	if c.state != domain.StateCreating {
		l.Warn().Str("room_url", room.String()).Msg("Dropping room provisioned outside of creating state")
		return
	}
	if err != nil {
		l.Error().Err(err).Msg("Error creating room")
		c.metrics.ProvisionFailed()
		c.room = ""
		c.setState(domain.StateIdle)
		return
	}
	l.Info().Str("room_url", room.String()).Msg("Room created")
	if err := c.startJoining(room); err != nil {
		l.Error().Err(err).Msg("Failed to start joining")
	}
}

func (c *SessionController) loadPage(pageURL string) error {
	if c.closing {
		return ErrClosed
	}
	c.pageURL = pageURL
	c.shownURL = pageURL

	room, ok := domain.RoomURLFromPageURL(pageURL)
	if !ok || c.state != domain.StateIdle {
		c.syncAddress()
		if ok && room != c.room {
			return ErrBusy
		}
		return nil
	}
	c.sessionID = domain.NewSessionID()
	l := c.logger()
	l.Info().Str("room_url", room.String()).Msg("Page loaded with room, joining")
	return c.startJoining(room)
}

// startJoining creates the one call client and issues the join. The factory
// must not block.
func (c *SessionController) startJoining(room domain.RoomURL) error {
	if c.client != nil {
		return ErrBusy
	}
	client, err := c.factory.NewClient(c.runCtx, domain.NewClientID())
	if err != nil {
		c.room = ""
		c.setState(domain.StateIdle)
		return fmt.Errorf("create call client: %w", err)
	}
	c.metrics.ClientCreated()

	c.client = client
	c.room = room
	c.sub = subscribe(client, func(id domain.ClientID, ev domain.Event) {
		c.post(func() { c.handleClientEvent(id, ev) })
	})
	c.setState(domain.StateJoining)

	if ev, ok := domain.EventForMeetingState(client.MeetingState()); ok {
		c.handleClientEvent(client.ID(), ev)
	}

	ctx, opts, id := c.runCtx, c.cfg.JoinOptions, client.ID()
	go func() {
		if err := client.Join(ctx, room, opts); err != nil {
			c.post(func() {
				c.handleClientEvent(id, domain.Event{Name: domain.EventError, ErrorMsg: err.Error()})
			})
		}
	}()
	return nil
}

func (c *SessionController) handleClientEvent(id domain.ClientID, ev domain.Event) {
	l := c.logger()
	if c.client == nil || c.client.ID() != id {
		l.Debug().Str("event", string(ev.Name)).Str("from_client", id.String()).Msg("Dropping event from stale client")
		return
	}
	logClientEvent(l, ev)

	switch ev.Name {
	case domain.EventJoined:
		if c.state != domain.StateJoining {
			return
		}
		c.setState(domain.StateJoined)
		if t := c.cfg.JoinOptions.Topology; t != domain.TopologyDefault {
			c.switchTopology(t)
		}

	case domain.EventError:
		if c.state == domain.StateJoining || c.state == domain.StateJoined {
			c.setState(domain.StateError)
		}

	case domain.EventLeft:
		if c.releasing || !c.state.HasClient() {
			return
		}
		c.release()

	case domain.EventAppMessage:
		msg, err := domain.NewAppMessage(ev)
		if err != nil {
			return
		}
		l.Info().Str("from_id", msg.FromID).RawJSON("data", rawOrNull(msg.Data)).Msg("Received app message")
		if c.messages != nil {
			c.messages.AppMessage(*msg)
		}
	}
}

func (c *SessionController) switchTopology(t domain.Topology) {
	client, ctx := c.client, c.runCtx
	l := c.logger()
	go func() {
		l.Info().Str("topology", string(t)).Msg("Switching network topology post-join")
		if err := client.SetNetworkTopology(ctx, t); err != nil {
			l.Warn().Err(err).Str("topology", string(t)).Msg("Failed to switch network topology")
		}
	}()
}

func (c *SessionController) leaveCall() error {
	// a release already in flight ends in idle; the client takes no more commands
	if c.releasing {
		return nil
	}
	switch c.state {
	case domain.StateError:
		c.release()
		return nil

	case domain.StateJoined:
		c.setState(domain.StateLeaving)
		client, ctx, id := c.client, c.runCtx, c.client.ID()
		l := c.logger()
		go func() {
			if err := client.Leave(ctx); err != nil {
				l.Error().Err(err).Msg("Leave command failed, releasing client")
				c.post(func() { c.leaveFailed(id) })
			}
		}()
		return nil

	case domain.StateLeaving:
		if c.fault != "" {
			c.release()
		}
		return nil
	}
	return ErrLeaveNotAllowed
}

func (c *SessionController) leaveFailed(id domain.ClientID) {
	if c.client == nil || c.client.ID() != id || c.releasing {
		return
	}
	c.release()
}

// release tears the client down. The session only becomes idle once Destroy
// has returned; a replacement client cannot be created before that.
func (c *SessionController) release() {
	c.releasing = true
	c.fault = ""
	if c.sub != nil {
		c.sub.release()
		c.sub = nil
	}
	c.publish()

	client, timeout := c.client, c.cfg.ReleaseTimeout
	go func() {
		err := destroyWithin(client, timeout)
		c.post(func() { c.released(client.ID(), err) })
	}()
}

func destroyWithin(client port.CallClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- client.Destroy(ctx) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrReleaseTimeout, timeout)
	}
}

func (c *SessionController) released(id domain.ClientID, err error) {
	if c.client == nil || c.client.ID() != id {
		return
	}
	c.releasing = false
	c.metrics.ClientReleased(err)
	l := c.logger()

	if err != nil {
		c.fault = err.Error()
		l.Error().Err(err).Msg("Call client release failed, session cannot return to idle")
		c.publish()
		if c.closing {
			c.stop()
		}
		return
	}

	l.Info().Msg("Call client released")
	c.client = nil
	c.room = ""
	c.fault = ""
	c.setState(domain.StateIdle)
	if c.closing {
		c.stop()
	}
}

func (c *SessionController) setState(to domain.State) {
	from := c.state
	c.state = to
	if from != to {
		c.metrics.Transition(from, to)
		l := c.logger()
		l.Info().Str("from", from.String()).Msg("Session state changed")
	}
	c.publish()
}

func (c *SessionController) snapshot() domain.Snapshot {
	s := domain.Snapshot{
		SessionID: c.sessionID,
		State:     c.state,
		RoomURL:   c.room,
		Releasing: c.releasing,
		Fault:     c.fault,
	}
	if c.client != nil {
		s.ClientID = c.client.ID()
	}
	return s
}

func (c *SessionController) publish() {
	s := c.snapshot()
	if err := s.Validate(); err != nil {
		l := c.logger()
		l.Error().Err(err).Msg("Session invariant violated")
	}

	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()

	c.syncAddress()
	for _, o := range c.observers {
		o.SessionChanged(s)
	}
}

// syncAddress mirrors the room into the page address, replace-style.
func (c *SessionController) syncAddress() {
	if c.address == nil || c.pageURL == "" {
		return
	}
	next := domain.PageURLFromRoomURL(c.pageURL, c.room)
	if next == c.shownURL {
		return
	}
	c.shownURL = next
	c.address.ReplaceURL(next)
}
