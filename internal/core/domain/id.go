package domain

import (
	"github.com/google/uuid"
)

// SessionID identifies one websocket session on the dev broker.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (s SessionID) String() string {
	return string(s)
}
