package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// AppMessage is an application payload broadcast between call participants.
type AppMessage struct {
	FromID     string
	Data       json.RawMessage
	ReceivedAt time.Time
}

func NewAppMessage(ev Event) (*AppMessage, error) {
	if ev.Name != EventAppMessage {
		return nil, errors.New("event is not an app message")
	}
	return &AppMessage{
		FromID:     ev.FromID,
		Data:       ev.Data,
		ReceivedAt: time.Now(),
	}, nil
}
