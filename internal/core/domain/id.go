package domain

import (
	"github.com/google/uuid"
)

type SessionID uuid.UUID
type ClientID uuid.UUID

func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

func NewClientID() ClientID {
	return ClientID(uuid.New())
}

func ParseClientID(s string) (ClientID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ClientID{}, err
	}
	return ClientID(id), nil
}

func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

func (id ClientID) String() string {
	return uuid.UUID(id).String()
}

func (id ClientID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}
