package memory

import (
	"errors"
	"testing"

	"github.com/chatty-im/chatty/internal/core/port"
)

func TestJoinLeaveLifecycle(t *testing.T) {
	e := NewEngine()
	events, cancel := e.Events()
	defer cancel()

	if err := e.Join("alice", "room-1"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if ev := <-events; ev.Kind != port.VideoConferenceJoined || ev.Participant != "alice" {
		t.Errorf("event = %+v", ev)
	}

	if err := e.Join("alice", "room-2"); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("second Join() error = %v, want ErrAlreadyJoined", err)
	}

	if err := e.Leave(); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if ev := <-events; ev.Kind != port.VideoConferenceLeft {
		t.Errorf("event = %+v", ev)
	}

	// Leave when not joined is a no-op.
	if err := e.Leave(); err != nil {
		t.Errorf("Leave() while idle error = %v", err)
	}
	if len(events) != 0 {
		t.Error("idle Leave emitted an event")
	}
}

func TestEmitParticipant(t *testing.T) {
	e := NewEngine()
	events, cancel := e.Events()
	defer cancel()

	e.EmitParticipant(port.VideoParticipantIn, "bob")
	if ev := <-events; ev.Kind != port.VideoParticipantIn || ev.Participant != "bob" {
		t.Errorf("event = %+v", ev)
	}
}
