// Package presence fans session changes out to the pages rendering them.
package presence

import (
	"encoding/json"
	"sync"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/rs/zerolog/log"
)

const broadcastBuffer = 32

type Viewer interface {
	ID() string
	Send(u Update) error
	Close() error
}

const (
	UpdateSession    = "session"
	UpdateLocation   = "location"
	UpdateAppMessage = "app_message"
	UpdateError      = "error"
)

type Update struct {
	Type     string       `json:"type"`
	Session  *SessionView `json:"session,omitempty"`
	Location *Location    `json:"location,omitempty"`
	Message  *MessageView `json:"message,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// SessionView is the session as the page sees it, render flags included.
type SessionView struct {
	SessionID           string `json:"session_id"`
	State               string `json:"state"`
	RoomURL             string `json:"room_url,omitempty"`
	ClientID            string `json:"client_id,omitempty"`
	Releasing           bool   `json:"releasing"`
	Fault               string `json:"fault,omitempty"`
	ShowCall            bool   `json:"show_call"`
	CallControlsEnabled bool   `json:"call_controls_enabled"`
	StartEnabled        bool   `json:"start_enabled"`
}

func NewSessionView(s domain.Snapshot) SessionView {
	v := SessionView{
		SessionID:           s.SessionID.String(),
		State:               s.State.String(),
		RoomURL:             s.RoomURL.String(),
		Releasing:           s.Releasing,
		Fault:               s.Fault,
		ShowCall:            s.State.ShowCall(),
		CallControlsEnabled: s.State.CallControlsEnabled() && !s.Releasing,
		StartEnabled:        s.State.StartEnabled(),
	}
	if s.HasClient() {
		v.ClientID = s.ClientID.String()
	}
	return v
}

// Location asks the page to rewrite its address. Mode is always "replace".
type Location struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

type MessageView struct {
	FromID string          `json:"from_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Hub implements port.AddressBar, port.SessionObserver and port.MessageSink.
// Publishing never blocks the caller.
type Hub struct {
	clients    map[Viewer]bool
	broadcast  chan Update
	register   chan Viewer
	unregister chan Viewer
	quit       chan struct{}

	mu       sync.Mutex
	session  *Update
	location *Update
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Viewer]bool),
		broadcast:  make(chan Update, broadcastBuffer),
		register:   make(chan Viewer),
		unregister: make(chan Viewer),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) SessionChanged(s domain.Snapshot) {
	v := NewSessionView(s)
	u := Update{Type: UpdateSession, Session: &v}
	h.mu.Lock()
	h.session = &u
	h.mu.Unlock()
	h.publish(u)
}

func (h *Hub) ReplaceURL(pageURL string) {
	u := Update{Type: UpdateLocation, Location: &Location{URL: pageURL, Mode: "replace"}}
	h.mu.Lock()
	h.location = &u
	h.mu.Unlock()
	h.publish(u)
}

func (h *Hub) AppMessage(msg domain.AppMessage) {
	h.publish(Update{Type: UpdateAppMessage, Message: &MessageView{FromID: msg.FromID, Data: msg.Data}})
}

func (h *Hub) publish(u Update) {
	select {
	case h.broadcast <- u:
	default:
		log.Warn().Str("type", u.Type).Msg("Presence broadcast full, dropping update")
	}
}

func (h *Hub) Join(v Viewer) {
	select {
	case h.register <- v:
	case <-h.quit:
	}
}

func (h *Hub) Leave(v Viewer) {
	select {
	case h.unregister <- v:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			log.Info().Msg("Stopping presence hub. Disconnecting all viewers.")
			for v := range h.clients {
				if err := v.Close(); err != nil {
					log.Error().Err(err).Str("viewer_id", v.ID()).Msg("Error closing viewer connection")
				}
				delete(h.clients, v)
			}
			return

		case v := <-h.register:
			h.clients[v] = true
			log.Info().Int("count", len(h.clients)).Str("viewer_id", v.ID()).Msg("Viewer joined")
			h.catchUp(v)

		case v := <-h.unregister:
			if _, ok := h.clients[v]; ok {
				delete(h.clients, v)
				log.Info().Int("count", len(h.clients)).Str("viewer_id", v.ID()).Msg("Viewer left")
			}

		case u := <-h.broadcast:
			for v := range h.clients {
				if err := v.Send(u); err != nil {
					log.Error().Err(err).Str("viewer_id", v.ID()).Msg("Error sending update")
					v.Close()
					delete(h.clients, v)
				}
			}
		}
	}
}

// catchUp sends the latest session and location to a new viewer.
func (h *Hub) catchUp(v Viewer) {
	h.mu.Lock()
	pending := make([]Update, 0, 2)
	if h.session != nil {
		pending = append(pending, *h.session)
	}
	if h.location != nil {
		pending = append(pending, *h.location)
	}
	h.mu.Unlock()

	for _, u := range pending {
		if err := v.Send(u); err != nil {
			log.Error().Err(err).Str("viewer_id", v.ID()).Msg("Error sending catch-up")
			v.Close()
			delete(h.clients, v)
			return
		}
	}
}
