package http

import (
	"net/http"
	"sync"

	"github.com/Wyydra/callctl/internal/adapter/driven/gateway/presence"
	"github.com/Wyydra/callctl/internal/adapter/driven/gateway/ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict to the configured page origin once it is part of Config
	CheckOrigin: func(r *http.Request) bool { return true },
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *conn) Close() error {
	return c.ws.Close()
}

type AgentConn struct {
	conn
}

func (c *AgentConn) SendCommand(cmd ws.Command) error {
	return c.writeJSON(cmd)
}

type ViewerConn struct {
	conn
}

func (c *ViewerConn) Send(u presence.Update) error {
	return c.writeJSON(u)
}

func unexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure)
}

// ServeAgent accepts a browser tab hosting the vendor call SDK.
func (h *Handler) ServeAgent(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	agent := &AgentConn{conn{id: uuid.New().String(), ws: c}}

	l := log.With().Str("agent_id", agent.ID()).Logger()
	l.Info().Msg("New call agent connected")

	h.Agents.Register(agent)

	defer func() {
		l.Info().Msg("Call agent disconnected")
		h.Agents.Unregister(agent)
		c.Close()
	}()

	for {
		var msg ws.Inbound
		if err := c.ReadJSON(&msg); err != nil {
			if unexpectedClose(err) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}
		if err := h.Agents.HandleInbound(agent, msg); err != nil {
			l.Warn().Err(err).Msg("Failed to handle agent message")
		}
	}
}

// ServeViewer streams session updates to a page and takes its intents.
func (h *Handler) ServeViewer(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	viewer := &ViewerConn{conn{id: uuid.New().String(), ws: c}}

	l := log.With().Str("viewer_id", viewer.ID()).Logger()
	l.Info().Msg("New viewer connected")

	h.Viewers.Join(viewer)

	defer func() {
		l.Info().Msg("Viewer disconnected")
		h.Viewers.Leave(viewer)
		c.Close()
	}()

	for {
		type intentDTO struct {
			Type string `json:"type"`
			Href string `json:"href"`
		}

		var req intentDTO
		if err := c.ReadJSON(&req); err != nil {
			if unexpectedClose(err) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		ctx := r.Context()
		switch req.Type {
		case "page":
			err = h.Sessions.LoadPage(ctx, req.Href)
		case "start":
			err = h.Sessions.StartCall(ctx)
		case "leave":
			err = h.Sessions.LeaveCall(ctx)
		default:
			l.Warn().Str("type", req.Type).Msg("Unknown viewer intent")
			continue
		}
		if err != nil {
			l.Warn().Err(err).Str("type", req.Type).Msg("Viewer intent rejected")
			if werr := viewer.Send(presence.Update{Type: presence.UpdateError, Error: err.Error()}); werr != nil {
				break
			}
		}
	}
}
