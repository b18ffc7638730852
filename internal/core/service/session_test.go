package service

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/callctl/internal/adapter/driven/callclient/memory"
	"github.com/Wyydra/callctl/internal/adapter/driven/provisioner/static"
	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
)

const (
	room1   = "https://example.daily.co/room1"
	badRoom = "https://example.daily.co/bad"
	page    = "https://app.example/"
)

type recorder struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
	urls  []string
	msgs  []domain.AppMessage
}

func (r *recorder) SessionChanged(s domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) ReplaceURL(u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, u)
}

func (r *recorder) AppMessage(m domain.AppMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

// states returns the observed states with consecutive repeats collapsed.
func (r *recorder) states() []domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.State
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

func (r *recorder) lastURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.urls) == 0 {
		return ""
	}
	return r.urls[len(r.urls)-1]
}

func (r *recorder) checkInvariants(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.snaps {
		if err := s.Validate(); err != nil {
			t.Fatalf("snapshot %d (%s): %v", i, s.State, err)
		}
	}
}

type blockingProvisioner struct {
	release chan struct{}
}

func (p *blockingProvisioner) CreateRoom(ctx context.Context) (domain.RoomURL, error) {
	select {
	case <-p.release:
		return domain.RoomURL(room1), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fixture struct {
	ctrl    *SessionController
	factory *memory.Factory
	rec     *recorder
}

func newFixture(t *testing.T, room string, mcfg memory.Config, scfg SessionConfig) *fixture {
	t.Helper()
	prov, err := static.NewProvisioner(room)
	if err != nil {
		t.Fatalf("provisioner: %v", err)
	}
	return newFixtureWith(t, prov, mcfg, scfg)
}

func newFixtureWith(t *testing.T, prov port.RoomProvisioner, mcfg memory.Config, scfg SessionConfig) *fixture {
	t.Helper()
	if scfg.ReleaseTimeout == 0 {
		scfg.ReleaseTimeout = time.Second
	}
	f := &fixture{
		factory: memory.NewFactory(mcfg),
		rec:     &recorder{},
	}
	f.ctrl = NewSessionController(prov, f.factory, scfg,
		WithObserver(f.rec),
		WithAddressBar(f.rec),
		WithMessageSink(f.rec),
	)
	go f.ctrl.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.ctrl.Close(ctx)
	})
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fixture) waitState(t *testing.T, want domain.State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool {
		s := f.ctrl.Snapshot()
		return s.State == want && !s.Releasing
	})
}

func expectStates(t *testing.T, got []domain.State, want ...domain.State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, got)
		}
	}
}

func TestStartJoinLeave(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})
	ctx := context.Background()

	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	if got := f.ctrl.Snapshot().RoomURL; got != room1 {
		t.Fatalf("expected room %s, got %s", room1, got)
	}
	client := f.factory.Last()

	if err := f.ctrl.LeaveCall(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	f.waitState(t, domain.StateIdle)

	expectStates(t, f.rec.states(),
		domain.StateCreating, domain.StateJoining, domain.StateJoined, domain.StateLeaving, domain.StateIdle)
	f.rec.checkInvariants(t)

	s := f.ctrl.Snapshot()
	if s.RoomURL != "" || s.HasClient() {
		t.Fatalf("expected cleared session, got %+v", s)
	}
	if client.LeaveCalls() != 1 {
		t.Fatalf("expected one leave command, got %d", client.LeaveCalls())
	}
	if !client.Destroyed() {
		t.Fatal("expected client to be destroyed")
	}
	if n := client.HandlerCount(); n != 0 {
		t.Fatalf("expected all handlers removed, %d left", n)
	}
	if f.factory.Live() != 0 || f.factory.MaxLive() != 1 {
		t.Fatalf("expected no live clients and at most one ever, got live=%d max=%d", f.factory.Live(), f.factory.MaxLive())
	}
}

func TestProvisionFailureReturnsToIdle(t *testing.T) {
	prov := static.NewFailingProvisioner(errors.New("backend down"))
	f := newFixtureWith(t, prov, memory.Config{}, SessionConfig{})

	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "provisioning to fail", func() bool { return len(f.rec.states()) == 2 })

	expectStates(t, f.rec.states(), domain.StateCreating, domain.StateIdle)
	if s := f.ctrl.Snapshot(); s.RoomURL != "" {
		t.Fatalf("expected no room, got %s", s.RoomURL)
	}
	if len(f.factory.Clients()) != 0 {
		t.Fatal("expected no client to be created")
	}
}

func TestStartIsNoOpUnlessIdle(t *testing.T) {
	prov := &blockingProvisioner{release: make(chan struct{})}
	f := newFixtureWith(t, prov, memory.Config{}, SessionConfig{})
	ctx := context.Background()

	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.ctrl.StartCall(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while creating, got %v", err)
	}

	close(prov.release)
	f.waitState(t, domain.StateJoined)

	if err := f.ctrl.StartCall(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while joined, got %v", err)
	}
	if f.factory.MaxLive() != 1 {
		t.Fatalf("expected a single client, got %d", f.factory.MaxLive())
	}
}

func TestErrorThenLeaveReleasesWithoutLeftEvent(t *testing.T) {
	f := newFixture(t, badRoom, memory.Config{FailRooms: []string{"bad"}}, SessionConfig{})
	ctx := context.Background()

	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateError)
	client := f.factory.Last()

	if err := f.ctrl.StartCall(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy in error state, got %v", err)
	}

	if err := f.ctrl.LeaveCall(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	f.waitState(t, domain.StateIdle)

	expectStates(t, f.rec.states(),
		domain.StateCreating, domain.StateJoining, domain.StateError, domain.StateIdle)
	f.rec.checkInvariants(t)

	if client.LeaveCalls() != 0 {
		t.Fatalf("expected no leave command, got %d", client.LeaveCalls())
	}
	if !client.Destroyed() {
		t.Fatal("expected client to be destroyed")
	}
}

func TestLeaveRejectedBeforeJoin(t *testing.T) {
	f := newFixture(t, room1, memory.Config{JoinDelay: time.Hour}, SessionConfig{})
	ctx := context.Background()

	if err := f.ctrl.LeaveCall(ctx); !errors.Is(err, ErrLeaveNotAllowed) {
		t.Fatalf("expected ErrLeaveNotAllowed when idle, got %v", err)
	}

	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoining)

	if err := f.ctrl.LeaveCall(ctx); !errors.Is(err, ErrLeaveNotAllowed) {
		t.Fatalf("expected ErrLeaveNotAllowed while joining, got %v", err)
	}
	if f.factory.Last().Destroyed() {
		t.Fatal("client must not be destroyed before join")
	}
}

func TestLoadPageWithRoomAutoJoins(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})
	ctx := context.Background()

	href := page + "?roomUrl=" + url.QueryEscape(room1)
	if err := f.ctrl.LoadPage(ctx, href); err != nil {
		t.Fatalf("load page: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	states := f.rec.states()
	if states[0] != domain.StateJoining {
		t.Fatalf("expected to go straight to joining, got %v", states)
	}
	if got := f.ctrl.Snapshot().RoomURL; got != room1 {
		t.Fatalf("expected room %s, got %s", room1, got)
	}

	if err := f.ctrl.LeaveCall(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	f.waitState(t, domain.StateIdle)
	if got := f.rec.lastURL(); got != page {
		t.Fatalf("expected address reset to %s, got %s", page, got)
	}
}

func TestLoadPageWithoutRoomStaysIdle(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})

	if err := f.ctrl.LoadPage(context.Background(), page); err != nil {
		t.Fatalf("load page: %v", err)
	}
	if s := f.ctrl.Snapshot(); s.State != domain.StateIdle {
		t.Fatalf("expected idle, got %s", s.State)
	}
	if len(f.factory.Clients()) != 0 {
		t.Fatal("expected no client")
	}
}

func TestAddressReplacedWhenRoomCreated(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})
	ctx := context.Background()

	if err := f.ctrl.LoadPage(ctx, page); err != nil {
		t.Fatalf("load page: %v", err)
	}
	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	want := page + "?roomUrl=" + url.QueryEscape(room1)
	if got := f.rec.lastURL(); got != want {
		t.Fatalf("expected address %s, got %s", want, got)
	}
}

func TestNoNewClientUntilReleaseCompletes(t *testing.T) {
	f := newFixture(t, badRoom, memory.Config{
		FailRooms:    []string{"bad"},
		DestroyDelay: 100 * time.Millisecond,
	}, SessionConfig{})
	ctx := context.Background()

	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateError)

	if err := f.ctrl.LeaveCall(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	s := f.ctrl.Snapshot()
	if s.State != domain.StateError || !s.Releasing {
		t.Fatalf("expected releasing error state, got %+v", s)
	}
	if err := f.ctrl.StartCall(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy during release, got %v", err)
	}

	f.waitState(t, domain.StateIdle)
	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	f.waitState(t, domain.StateError)
	if f.factory.MaxLive() != 1 {
		t.Fatalf("expected at most one live client, got %d", f.factory.MaxLive())
	}
}

func TestReleaseTimeoutSurfacesFault(t *testing.T) {
	f := newFixture(t, badRoom, memory.Config{
		FailRooms:   []string{"bad"},
		HangDestroy: true,
	}, SessionConfig{ReleaseTimeout: 30 * time.Millisecond})
	ctx := context.Background()

	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateError)
	if err := f.ctrl.LeaveCall(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	waitFor(t, "release fault", func() bool { return f.ctrl.Snapshot().Fault != "" })

	s := f.ctrl.Snapshot()
	if s.State != domain.StateError || !s.HasClient() {
		t.Fatalf("expected error state keeping its client, got %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("invariant: %v", err)
	}
	if err := f.ctrl.StartCall(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy after failed release, got %v", err)
	}
}

func TestJoinCommandFailureBecomesError(t *testing.T) {
	f := newFixture(t, room1, memory.Config{RejectJoin: errors.New("no permissions")}, SessionConfig{})

	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateError)
}

func TestLeftWhileJoinedReleases(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})

	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	f.factory.Last().Emit(domain.Event{Name: domain.EventLeft})
	f.waitState(t, domain.StateIdle)
	f.rec.checkInvariants(t)
}

func TestLeaveDuringReleaseSendsNoCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, room1, memory.Config{DestroyDelay: 200 * time.Millisecond}, SessionConfig{})

	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	client := f.factory.Last()
	client.Emit(domain.Event{Name: domain.EventLeft})
	waitFor(t, "release to start", func() bool { return f.ctrl.Snapshot().Releasing })

	if err := f.ctrl.LeaveCall(ctx); err != nil {
		t.Fatalf("leave during release: %v", err)
	}
	if s := f.ctrl.Snapshot(); s.State != domain.StateJoined {
		t.Fatalf("expected joined until release completes, got %s", s.State)
	}

	f.waitState(t, domain.StateIdle)
	if client.LeaveCalls() != 0 {
		t.Fatalf("expected no leave command, got %d", client.LeaveCalls())
	}
	expectStates(t, f.rec.states(), domain.StateCreating, domain.StateJoining, domain.StateJoined, domain.StateIdle)
	f.rec.checkInvariants(t)
}

func TestTopologySwitchedAfterJoin(t *testing.T) {
	opts := domain.DefaultJoinOptions()
	opts.Topology = domain.TopologySFU
	f := newFixture(t, room1, memory.Config{}, SessionConfig{JoinOptions: opts})

	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	client := f.factory.Last()
	waitFor(t, "sfu topology", func() bool { return client.Topology() == domain.TopologySFU })
	if client.JoinOptions().Topology != domain.TopologySFU {
		t.Fatalf("expected join options to be passed through, got %+v", client.JoinOptions())
	}
}

func TestAppMessagesArePassedThrough(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})

	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	f.factory.Last().Emit(domain.Event{
		Name:   domain.EventAppMessage,
		FromID: "peer-7",
		Data:   []byte(`{"hello":"world"}`),
	})
	waitFor(t, "app message", func() bool {
		f.rec.mu.Lock()
		defer f.rec.mu.Unlock()
		return len(f.rec.msgs) == 1
	})
	if got := f.rec.msgs[0].FromID; got != "peer-7" {
		t.Fatalf("expected message from peer-7, got %s", got)
	}
}

func TestCloseReleasesClient(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})

	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.ctrl.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.factory.Live() != 0 {
		t.Fatalf("expected client released on close, %d live", f.factory.Live())
	}
	if err := f.ctrl.StartCall(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCurrentClient(t *testing.T) {
	f := newFixture(t, room1, memory.Config{}, SessionConfig{})
	ctx := context.Background()

	if _, err := f.ctrl.CurrentClient(ctx); !errors.Is(err, ErrNoClient) {
		t.Fatalf("expected ErrNoClient, got %v", err)
	}
	if err := f.ctrl.StartCall(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.waitState(t, domain.StateJoined)

	c, err := f.ctrl.CurrentClient(ctx)
	if err != nil {
		t.Fatalf("current client: %v", err)
	}
	if c.ID() != f.factory.Last().ID() {
		t.Fatal("expected the owned client")
	}
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	f := newFixture(t, room1, memory.Config{
		JoinDelay:    time.Millisecond,
		LeaveDelay:   time.Millisecond,
		DestroyDelay: time.Millisecond,
	}, SessionConfig{})
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 300; i++ {
		switch rnd.Intn(5) {
		case 0:
			_ = f.ctrl.StartCall(ctx)
		case 1:
			_ = f.ctrl.LeaveCall(ctx)
		case 2:
			if c := f.factory.Last(); c != nil {
				c.Emit(domain.Event{Name: domain.EventError, ErrorMsg: "network"})
			}
		case 3:
			if c := f.factory.Last(); c != nil {
				c.Emit(domain.Event{Name: domain.EventLeft})
			}
		case 4:
			time.Sleep(time.Duration(rnd.Intn(3)) * time.Millisecond)
		}
	}

	f.rec.checkInvariants(t)
	if f.factory.MaxLive() > 1 {
		t.Fatalf("expected at most one live client, saw %d", f.factory.MaxLive())
	}
}
