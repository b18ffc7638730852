package domain

import "encoding/json"

type EventName string

const (
	EventJoined     EventName = "joined-meeting"
	EventLeft       EventName = "left-meeting"
	EventError      EventName = "error"
	EventAppMessage EventName = "app-message"
)

// Event is something a call client reported.
type Event struct {
	Name     EventName
	ErrorMsg string
	FromID   string
	Data     json.RawMessage
}

// EventForMeetingState maps a reported meeting state onto the lifecycle
// event it implies, if any.
func EventForMeetingState(s MeetingState) (Event, bool) {
	switch s {
	case MeetingJoined:
		return Event{Name: EventJoined}, true
	case MeetingLeft:
		return Event{Name: EventLeft}, true
	case MeetingError:
		return Event{Name: EventError}, true
	}
	return Event{}, false
}
