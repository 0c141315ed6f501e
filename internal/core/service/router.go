package service

import (
	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/event"
)

// Router decodes inbound notifications and redistributes them to typed
// streams by kind. It is a pure decode-and-redistribute step: exactly one
// stream fires per envelope, unknown kinds are dropped, and no I/O happens
// here.
type Router struct {
	presence    *event.Stream[domain.PresenceEvent]
	callState   *event.Stream[domain.CallEvent]
	messages    *event.Stream[domain.MessageEvent]
	toasts      *event.Stream[string]
	onlineUsers *event.Stream[[]domain.UserSocket]
}

func NewRouter() *Router {
	return &Router{
		presence:    event.NewStream[domain.PresenceEvent](),
		callState:   event.NewStream[domain.CallEvent](),
		messages:    event.NewStream[domain.MessageEvent](),
		toasts:      event.NewStream[string](),
		onlineUsers: event.NewStream[[]domain.UserSocket](),
	}
}

func (r *Router) Presence() *event.Stream[domain.PresenceEvent]   { return r.presence }
func (r *Router) CallState() *event.Stream[domain.CallEvent]      { return r.callState }
func (r *Router) Messages() *event.Stream[domain.MessageEvent]    { return r.messages }
func (r *Router) Toasts() *event.Stream[string]                   { return r.toasts }
func (r *Router) OnlineUsers() *event.Stream[[]domain.UserSocket] { return r.onlineUsers }

// Dispatch routes one inbound envelope. Metadata is already decoded to a map
// by the transport boundary.
func (r *Router) Dispatch(n domain.Notification) {
	switch n.Type {
	case domain.KindUserState:
		r.presence.Publish(domain.PresenceEvent{
			User:    n.Meta(domain.MetaUser),
			Content: n.Content,
			State:   domain.UserState(n.Meta(domain.MetaState)),
		})

	case domain.KindIncomingCall:
		r.publishCall(n, domain.CallIncoming)
	case domain.KindAcceptedCall:
		r.publishCall(n, domain.CallAccepted)
	case domain.KindRejectedCall:
		r.publishCall(n, domain.CallRejected)
	case domain.KindCancelledCall:
		r.publishCall(n, domain.CallCancelled)

	case domain.KindIncomingMessage:
		user, err := domain.DecodeUser(n.Meta(domain.MetaUser))
		if err != nil {
			log.Warn().Err(err).Msg("dropping message notification with bad USER metadata")
			return
		}
		r.messages.Publish(domain.MessageEvent{
			User:    user,
			Message: n.Meta(domain.MetaMessage),
			Room:    n.Meta(domain.MetaRoom),
		})
		if n.Content != "" {
			r.toasts.Publish(n.Content)
		}

	case domain.KindOnlineUsers:
		list, err := domain.DecodeUserList(n.Meta(domain.MetaUsers))
		if err != nil {
			log.Warn().Err(err).Msg("dropping online-users notification with bad USERS metadata")
			return
		}
		r.onlineUsers.Publish(list)

	default:
		log.Debug().Str("type", string(n.Type)).Msg("ignoring notification of unknown kind")
	}
}

func (r *Router) publishCall(n domain.Notification, state domain.CallState) {
	user, err := domain.DecodeUser(n.Meta(domain.MetaUser))
	if err != nil {
		log.Warn().Err(err).Msg("dropping call notification with bad USER metadata")
		return
	}
	r.callState.Publish(domain.CallEvent{
		Room:    n.Meta(domain.MetaRoom),
		User:    user,
		Content: n.Content,
		State:   state,
	})
}
