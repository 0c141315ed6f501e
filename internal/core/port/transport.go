package port

import (
	"github.com/chatty-im/chatty/internal/core/domain"
)

// Fixed wire destinations.
const (
	DestChat        = "/chat"
	DestOnlineUsers = "/online-users"
	DestUpdateState = "/update-user-state"
	TopicPublic     = "/topic/public"
)

// UserQueue returns the per-user private channel destination.
func UserQueue(username string) string {
	return "/user/" + username + "/queue/messages"
}

// TokenSource supplies the bearer token appended to the transport URL.
type TokenSource interface {
	Token() string
}

// Transport is the client's one multiplexed connection to the server. Sends
// are fire-and-forget: a send while disconnected is silently dropped.
type Transport interface {
	// Send serializes the notification and emits it on destination.
	Send(destination string, n domain.Notification) error
	// RequestOnlineUsers asks the server for the current presence snapshot.
	// Only effective while a topic subscription is registered.
	RequestOnlineUsers()
	// RequestUserStateUpdate announces the local user's presence state.
	// Only effective while a topic subscription is registered.
	RequestUserStateUpdate(state domain.UserState)
	// Ready subscribes to the connection-ready signal. The signal replays to
	// subscribers that arrive after the handshake completed.
	Ready() (<-chan struct{}, func())
}
