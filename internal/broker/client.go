package broker

import (
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
	"github.com/chatty-im/chatty/internal/stomp"
)

const clientSendBuffer = 64

// client is one websocket session on the broker.
type client struct {
	id       domain.SessionID
	username string
	broker   *Broker
	conn     *websocket.Conn

	mu     sync.Mutex
	subs   map[string]string // subscription id -> destination
	closed bool

	send      chan []byte
	closeOnce sync.Once
}

func newClient(b *Broker, conn *websocket.Conn, username string) *client {
	return &client{
		id:       domain.NewSessionID(),
		username: username,
		broker:   b,
		conn:     conn,
		subs:     make(map[string]string),
		send:     make(chan []byte, clientSendBuffer),
	}
}

// Serve pumps the session until the socket drops. Blocks.
func (c *client) serve() {
	go c.writePump()
	defer func() {
		c.broker.unregister(c)
		c.close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user", c.username).Msg("unexpected close")
			}
			return
		}
		frame, err := stomp.Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("user", c.username).Msg("dropping malformed frame")
			continue
		}
		if frame == nil {
			continue // heartbeat
		}
		if done := c.handleFrame(frame); done {
			return
		}
	}
}

func (c *client) handleFrame(f *stomp.Frame) bool {
	switch f.Command {
	case stomp.CmdConnect:
		c.enqueue(stomp.NewFrame(stomp.CmdConnected, stomp.HdrVersion, "1.2"))
		c.broker.register(c)

	case stomp.CmdSubscribe:
		id, destination := f.Header(stomp.HdrID), f.Header(stomp.HdrDestination)
		if id == "" || destination == "" {
			c.enqueue(stomp.NewFrame(stomp.CmdError, stomp.HdrMessage, "subscribe requires id and destination"))
			return false
		}
		c.mu.Lock()
		c.subs[id] = destination
		c.mu.Unlock()
		c.broker.onSubscribed(c, destination)

	case stomp.CmdUnsubscribe:
		c.mu.Lock()
		delete(c.subs, f.Header(stomp.HdrID))
		c.mu.Unlock()

	case stomp.CmdSend:
		c.handleSend(f)

	case stomp.CmdDisconnect:
		return true

	default:
		log.Debug().Str("command", f.Command).Msg("ignoring frame")
	}
	return false
}

func (c *client) handleSend(f *stomp.Frame) {
	switch f.Header(stomp.HdrDestination) {
	case port.DestOnlineUsers:
		c.broker.handleOnlineUsers(c)
	case port.DestUpdateState:
		c.broker.handleStateUpdate(c, domain.UserState(f.Body))
	case port.DestChat:
		var n domain.Notification
		if err := json.Unmarshal(f.Body, &n); err != nil {
			log.Warn().Err(err).Str("user", c.username).Msg("dropping malformed chat envelope")
			return
		}
		c.broker.handleChat(c, n)
	default:
		log.Debug().Str("destination", f.Header(stomp.HdrDestination)).Msg("ignoring send")
	}
}

// deliver forwards a notification as a MESSAGE frame if this session is
// subscribed to the destination.
func (c *client) deliver(destination string, n domain.Notification) {
	c.mu.Lock()
	subID := ""
	for id, dest := range c.subs {
		if dest == destination {
			subID = id
			break
		}
	}
	c.mu.Unlock()
	if subID == "" {
		return
	}

	body, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Msg("encoding notification")
		return
	}
	frame := stomp.NewFrame(stomp.CmdMessage,
		stomp.HdrDestination, destination,
		stomp.HdrSubscription, subID,
		stomp.HdrMessageID, uuid.New().String(),
		stomp.HdrContentType, "application/json",
	)
	frame.Body = body
	c.enqueue(frame)
}

func (c *client) enqueue(f *stomp.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f.Encode():
	default:
		log.Warn().Str("user", c.username).Msg("send buffer full, dropping frame")
	}
}

func (c *client) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Str("user", c.username).Msg("write failed")
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
		_ = c.conn.Close()
	})
}
