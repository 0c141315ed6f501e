package port

import "github.com/chatty-im/chatty/internal/core/domain"

// CallSurface is the call UI the state machine drives. Implementations must
// return from Show* only once the surface finished its open transition, so
// callers can sequence follow-up actions after it instead of sleeping.
type CallSurface interface {
	// ShowPending opens the surface in compact "pending" mode for an
	// outgoing or incoming call.
	ShowPending(peer string, state domain.CallState)
	// ShowActive switches the surface to full-size in-call mode.
	ShowActive(peer string)
	// ShowError presents the call-error mode.
	ShowError()
	// Hide closes the surface. Safe when already hidden.
	Hide()
}

// Ringer plays the looping ringtone for a pending incoming call.
type Ringer interface {
	Play()
	Stop()
}
