package service

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
)

// CallGateway translates call-lifecycle intents into outbound signaling
// envelopes on the fixed chat destination. Stateless and fire-and-forget.
type CallGateway struct {
	transport port.Transport
}

func NewCallGateway(transport port.Transport) *CallGateway {
	return &CallGateway{transport: transport}
}

// Invite signals an outgoing call to the members of roomID.
func (g *CallGateway) Invite(roomID, callerName string) {
	g.send(domain.KindIncomingCall, map[string]string{
		domain.MetaRoom:  roomID,
		domain.MetaName:  callerName,
		domain.MetaState: string(domain.CallOutgoing),
	})
}

// Accept signals that the local user answered the call in roomID.
func (g *CallGateway) Accept(roomID string) {
	g.send(domain.KindAcceptedCall, map[string]string{domain.MetaRoom: roomID})
}

// Reject signals that the local user declined the call in roomID.
func (g *CallGateway) Reject(roomID string) {
	g.send(domain.KindRejectedCall, map[string]string{domain.MetaRoom: roomID})
}

// Cancel withdraws the pending outgoing call in roomID.
func (g *CallGateway) Cancel(roomID string) {
	g.send(domain.KindCancelledCall, map[string]string{domain.MetaRoom: roomID})
}

// Message sends a chat message to the members of roomID.
func (g *CallGateway) Message(roomID, text string) {
	g.send(domain.KindIncomingMessage, map[string]string{
		domain.MetaRoom:    roomID,
		domain.MetaMessage: text,
	})
}

func (g *CallGateway) send(kind domain.NotificationKind, metadata map[string]string) {
	n := domain.Notification{
		Type:     kind,
		Metadata: metadata,
		Time:     time.Now(),
	}
	if err := g.transport.Send(port.DestChat, n); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("dropping outbound signaling envelope")
	}
}
