package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoAgent   = errors.New("no call agent connected")
	ErrAgentGone = errors.New("call agent disconnected")
	ErrStopped   = errors.New("call agent hub stopped")
)

type pending struct {
	agent Agent
	reply chan Inbound
}

// Hub relays call client commands to the connected agent and routes the
// agent's replies and events back. It implements port.CallClientFactory.
type Hub struct {
	mu       sync.Mutex
	agents   map[Agent]bool
	current  Agent
	clients  map[domain.ClientID]*RemoteClient
	requests map[string]pending

	register   chan Agent
	unregister chan Agent
	quit       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		agents:     make(map[Agent]bool),
		clients:    make(map[domain.ClientID]*RemoteClient),
		requests:   make(map[string]pending),
		register:   make(chan Agent),
		unregister: make(chan Agent),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for agent := range h.agents {
				agent.Close()
				h.dropAgentLocked(agent)
			}
			h.mu.Unlock()
			return

		case agent := <-h.register:
			h.mu.Lock()
			h.agents[agent] = true
			h.current = agent
			h.mu.Unlock()
			log.Info().Str("agent_id", agent.ID()).Msg("Call agent registered")

		case agent := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.agents[agent]; ok {
				h.dropAgentLocked(agent)
				agent.Close()
				log.Info().Str("agent_id", agent.ID()).Msg("Call agent unregistered")
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(a Agent) {
	select {
	case h.register <- a:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(a Agent) {
	select {
	case h.unregister <- a:
	case <-h.quit:
	}
}

func (h *Hub) Stop() {
	close(h.quit)
}

// dropAgentLocked fails everything bound to agent. Clients living on it get
// an error event since their SDK object went away with the tab.
func (h *Hub) dropAgentLocked(agent Agent) {
	delete(h.agents, agent)
	if h.current == agent {
		h.current = nil
		for a := range h.agents {
			h.current = a
			break
		}
	}
	for id, p := range h.requests {
		if p.agent == agent {
			p.reply <- Inbound{Type: InboundReply, ID: id, Error: ErrAgentGone.Error()}
			delete(h.requests, id)
		}
	}
	for id, c := range h.clients {
		if c.agent != agent {
			continue
		}
		c.agentGone()
		delete(h.clients, id)
		go c.dispatch(domain.Event{Name: domain.EventError, ErrorMsg: ErrAgentGone.Error()})
	}
}

func (h *Hub) NewClient(ctx context.Context, id domain.ClientID) (port.CallClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil, ErrNoAgent
	}
	c := newRemoteClient(id, h, h.current)
	h.clients[id] = c
	return c, nil
}

func (h *Hub) forget(id domain.ClientID) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// HandleInbound is fed every message read from an agent connection.
func (h *Hub) HandleInbound(agent Agent, msg Inbound) error {
	switch msg.Type {
	case InboundReply:
		h.mu.Lock()
		p, ok := h.requests[msg.ID]
		if ok && p.agent == agent {
			delete(h.requests, msg.ID)
		}
		h.mu.Unlock()
		if !ok || p.agent != agent {
			return fmt.Errorf("unexpected reply %q", msg.ID)
		}
		p.reply <- msg
		return nil

	case InboundEvent:
		id, err := domain.ParseClientID(msg.ClientID)
		if err != nil {
			return fmt.Errorf("event for bad client id %q: %w", msg.ClientID, err)
		}
		h.mu.Lock()
		c, ok := h.clients[id]
		h.mu.Unlock()
		if !ok || c.agent != agent {
			log.Debug().Str("client_id", msg.ClientID).Str("event", msg.Event).Msg("Dropping event for unknown client")
			return nil
		}
		c.observe(msg)
		return nil
	}
	return fmt.Errorf("unknown inbound type %q", msg.Type)
}

func (h *Hub) request(ctx context.Context, agent Agent, clientID domain.ClientID, cmd string, args any, out any) error {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return err
		}
		raw = b
	}

	id := uuid.New().String()
	p := pending{agent: agent, reply: make(chan Inbound, 1)}

	h.mu.Lock()
	if _, ok := h.agents[agent]; !ok {
		h.mu.Unlock()
		return ErrAgentGone
	}
	h.requests[id] = p
	h.mu.Unlock()

	err := agent.SendCommand(Command{ID: id, ClientID: clientID.String(), Cmd: cmd, Args: raw})
	if err != nil {
		h.mu.Lock()
		delete(h.requests, id)
		h.mu.Unlock()
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	select {
	case reply := <-p.reply:
		if reply.Error == ErrAgentGone.Error() && !reply.OK {
			return ErrAgentGone
		}
		if !reply.OK {
			return fmt.Errorf("%s: %s", cmd, reply.Error)
		}
		if out != nil && len(reply.Result) > 0 {
			if err := json.Unmarshal(reply.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", cmd, err)
			}
		}
		return nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.requests, id)
		h.mu.Unlock()
		return ctx.Err()
	case <-h.quit:
		return ErrStopped
	}
}
