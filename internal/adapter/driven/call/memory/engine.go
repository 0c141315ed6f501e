// Package memory is an in-process stand-in for the external
// video-conferencing engine. The real engine runs outside this client; only
// the join/leave contract and its event feed matter here.
package memory

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/port"
	"github.com/chatty-im/chatty/internal/event"
)

var ErrAlreadyJoined = errors.New("already in a conference")

type Engine struct {
	mu     sync.Mutex
	joined bool
	room   string

	events *event.Stream[port.VideoEvent]
}

func NewEngine() *Engine {
	return &Engine{events: event.NewStream[port.VideoEvent]()}
}

func (e *Engine) Join(displayName, roomID string) error {
	e.mu.Lock()
	if e.joined {
		e.mu.Unlock()
		return ErrAlreadyJoined
	}
	e.joined = true
	e.room = roomID
	e.mu.Unlock()

	log.Info().Str("room", roomID).Str("name", displayName).Msg("joined conference")
	e.events.Publish(port.VideoEvent{Kind: port.VideoConferenceJoined, Participant: displayName})
	return nil
}

func (e *Engine) Leave() error {
	e.mu.Lock()
	if !e.joined {
		e.mu.Unlock()
		return nil
	}
	e.joined = false
	room := e.room
	e.room = ""
	e.mu.Unlock()

	log.Info().Str("room", room).Msg("left conference")
	e.events.Publish(port.VideoEvent{Kind: port.VideoConferenceLeft})
	return nil
}

func (e *Engine) Events() (<-chan port.VideoEvent, func()) {
	return e.events.Subscribe()
}

// EmitParticipant simulates a remote participant joining or leaving, for
// local development against the dev broker.
func (e *Engine) EmitParticipant(kind port.VideoEventKind, name string) {
	e.events.Publish(port.VideoEvent{Kind: kind, Participant: name})
}
