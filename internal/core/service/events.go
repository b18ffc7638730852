package service

import (
	"encoding/json"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
	"github.com/rs/zerolog"
)

var subscribedEvents = []domain.EventName{
	domain.EventJoined,
	domain.EventLeft,
	domain.EventError,
	domain.EventAppMessage,
}

// subscription holds the handlers registered on one client so they can all be
// removed together when the client is replaced or released.
type subscription struct {
	client   port.CallClient
	handlers map[domain.EventName]port.HandlerID
	released bool
}

func subscribe(client port.CallClient, handle func(id domain.ClientID, ev domain.Event)) *subscription {
	s := &subscription{
		client:   client,
		handlers: make(map[domain.EventName]port.HandlerID, len(subscribedEvents)),
	}
	id := client.ID()
	for _, name := range subscribedEvents {
		s.handlers[name] = client.On(name, func(ev domain.Event) {
			handle(id, ev)
		})
	}
	return s
}

func (s *subscription) release() {
	if s.released {
		return
	}
	s.released = true
	for name, id := range s.handlers {
		s.client.Off(name, id)
	}
}

func logClientEvent(l zerolog.Logger, ev domain.Event) {
	e := l.Debug().Str("event", string(ev.Name))
	if ev.ErrorMsg != "" {
		e = l.Warn().Str("event", string(ev.Name)).Str("error", ev.ErrorMsg)
	}
	e.Msg("Call client event")
}

func rawOrNull(data json.RawMessage) []byte {
	if len(data) == 0 || !json.Valid(data) {
		return []byte("null")
	}
	return data
}
