// Package broker is the development chat server: it speaks the same
// STOMP-over-websocket protocol the client does and reproduces the reference
// server's notification semantics (presence fan-out, online-users snapshots,
// call signaling relay). It keeps no durable state. Every connected user is
// treated as a member of every room, which is enough for local development
// and the integration tests.
package broker

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
)

type Broker struct {
	mu      sync.Mutex
	clients map[*client]bool
	states  map[string]domain.UserState
}

func New() *Broker {
	return &Broker{
		clients: make(map[*client]bool),
		states:  make(map[string]domain.UserState),
	}
}

// register adds a connected client and announces it, mirroring the reference
// server's session-connected listener.
func (b *Broker) register(c *client) {
	b.mu.Lock()
	b.clients[c] = true
	if _, ok := b.states[c.username]; !ok {
		b.states[c.username] = domain.StateOnline
	}
	total := len(b.clients)
	b.mu.Unlock()

	log.Info().Str("user", c.username).Int("total", total).Msg("client connected")
	b.announceState(c.username, domain.StateOnline, "User «"+c.username+"» Connected")
}

// unregister removes a client and announces the user offline.
func (b *Broker) unregister(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, c)
	delete(b.states, c.username)
	total := len(b.clients)
	b.mu.Unlock()

	log.Info().Str("user", c.username).Int("total", total).Msg("client disconnected")
	b.announceState(c.username, domain.StateOffline, "User «"+c.username+"» Disconnected")
}

// announceState broadcasts a USER_STATE notification on the shared topic to
// everyone but the subject.
func (b *Broker) announceState(username string, state domain.UserState, content string) {
	n := domain.Notification{
		Content: content,
		Type:    domain.KindUserState,
		Metadata: map[string]string{
			domain.MetaUser:  username,
			domain.MetaState: string(state),
		},
		Time: time.Now(),
	}
	b.broadcast(username, n)
}

// broadcast delivers a notification on /topic/public to every user except the
// subject.
func (b *Broker) broadcast(subject string, n domain.Notification) {
	b.mu.Lock()
	targets := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		if c.username != subject {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.deliver(port.TopicPublic, n)
	}
}

// onSubscribed fires when a client subscribes to its private queue: the
// reference server answers with the current online-users snapshot.
func (b *Broker) onSubscribed(c *client, destination string) {
	if destination != port.UserQueue(c.username) {
		return
	}
	b.sendOnlineUsers(c.username)
}

// handleOnlineUsers answers an explicit presence-snapshot request.
func (b *Broker) handleOnlineUsers(c *client) {
	b.sendOnlineUsers(c.username)
}

func (b *Broker) sendOnlineUsers(username string) {
	b.mu.Lock()
	list := make([]domain.UserSocket, 0, len(b.states))
	for user, state := range b.states {
		if user == username {
			continue
		}
		list = append(list, domain.UserSocket{Username: user, State: state})
	}
	b.mu.Unlock()

	n := domain.Notification{
		Type:     domain.KindOnlineUsers,
		Metadata: map[string]string{domain.MetaUsers: domain.EncodeUserList(list)},
		Time:     time.Now(),
	}
	b.sendToUser(username, n)
}

// handleStateUpdate records a user's announced state and fans it out.
func (b *Broker) handleStateUpdate(c *client, state domain.UserState) {
	switch state {
	case domain.StateOnline, domain.StateAway, domain.StateBusy, domain.StateOffline:
	default:
		log.Warn().Str("state", string(state)).Msg("ignoring unknown user state")
		return
	}
	b.mu.Lock()
	b.states[c.username] = state
	b.mu.Unlock()
	b.announceState(c.username, state, "")
}

// handleChat relays one signaling or message envelope to the other room
// members, stamping the sender reference and the reference server's content
// strings.
func (b *Broker) handleChat(c *client, n domain.Notification) {
	sender := c.username
	out := domain.Notification{
		Type:     n.Type,
		Metadata: map[string]string{domain.MetaRoom: n.Meta(domain.MetaRoom)},
		Time:     time.Now(),
	}
	switch n.Type {
	case domain.KindIncomingCall:
		out.Content = sender + " is calling you!"
	case domain.KindAcceptedCall:
		out.Content = sender + " accepted your call!"
	case domain.KindCancelledCall:
		out.Content = sender + " cancelled the call!"
	case domain.KindRejectedCall:
		out.Content = sender + " rejected your call!"
	case domain.KindIncomingMessage:
		out.Content = "New message from " + sender
		out.Metadata[domain.MetaMessage] = n.Meta(domain.MetaMessage)
	default:
		log.Warn().Str("type", string(n.Type)).Msg("ignoring chat envelope of unexpected kind")
		return
	}
	out.Metadata[domain.MetaUser] = domain.EncodeUser(domain.User{Login: sender})
	b.fanOut(sender, out)
}

// fanOut delivers a notification to every user's private queue except the
// sender's.
func (b *Broker) fanOut(sender string, n domain.Notification) {
	b.mu.Lock()
	targets := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		if c.username != sender {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.deliver(port.UserQueue(c.username), n)
	}
}

// sendToUser delivers a notification to one user's private queue.
func (b *Broker) sendToUser(username string, n domain.Notification) {
	b.mu.Lock()
	targets := make([]*client, 0, 1)
	for c := range b.clients {
		if c.username == username {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.deliver(port.UserQueue(username), n)
	}
}

// Serve runs one upgraded websocket connection as a broker session. Blocks
// until the socket drops.
func (b *Broker) Serve(conn *websocket.Conn, username string) {
	newClient(b, conn, username).serve()
}

// Stop closes every client connection.
func (b *Broker) Stop() {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[*client]bool)
	b.states = make(map[string]domain.UserState)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
