package port

// VideoEventKind classifies events emitted by the video-conferencing engine.
type VideoEventKind string

const (
	VideoConferenceJoined VideoEventKind = "conference_joined"
	VideoConferenceLeft   VideoEventKind = "conference_left"
	VideoParticipantIn    VideoEventKind = "participant_joined"
	VideoParticipantOut   VideoEventKind = "participant_left"
)

// VideoEvent is one signal coming back from the conferencing engine.
type VideoEvent struct {
	Kind        VideoEventKind
	Participant string
}

// VideoBridge drives the external video-conferencing engine. The engine
// itself is a black box; only this signaling contract is in scope.
type VideoBridge interface {
	// Join enters the conference room under the given display name.
	Join(displayName, roomID string) error
	// Leave hangs up the current conference. Safe when not joined.
	Leave() error
	// Events subscribes to engine signals (participants and conference
	// lifecycle).
	Events() (<-chan VideoEvent, func())
}
