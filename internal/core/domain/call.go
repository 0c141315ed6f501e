package domain

// CallState is the signaling state of the single tracked call.
type CallState string

const (
	CallIdle      CallState = "IDLE"
	CallOutgoing  CallState = "OUTGOING_CALL"
	CallIncoming  CallState = "INCOMING_CALL"
	CallAccepted  CallState = "ACCEPTED_CALL"
	CallRejected  CallState = "REJECTED_CALL"
	CallCancelled CallState = "CANCELLED_CALL"
	CallError     CallState = "ERROR"
)

// CallSession is the ephemeral record of the one call a client tracks at a
// time. It is never persisted.
type CallSession struct {
	RoomID   string
	PeerName string
	State    CallState
	IsError  bool
}

// Active reports whether the session is in a non-terminal call state.
func (s CallSession) Active() bool {
	switch s.State {
	case CallOutgoing, CallIncoming, CallAccepted:
		return true
	}
	return false
}

// CallEvent is a decoded call-state notification routed off the wire.
type CallEvent struct {
	Room    string
	User    User
	Content string
	State   CallState
}

// PresenceEvent is a decoded USER_STATE notification.
type PresenceEvent struct {
	User    string
	Content string
	State   UserState
}

// MessageEvent is a decoded INCOMING_MESSAGE notification.
type MessageEvent struct {
	User    User
	Message string
	Room    string
}
