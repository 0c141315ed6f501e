// Package ws implements the transport session: one multiplexed
// STOMP-over-websocket connection to the chat server.
package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
	"github.com/chatty-im/chatty/internal/event"
	"github.com/chatty-im/chatty/internal/stomp"
)

// Sink receives every decoded inbound notification, in arrival order.
type Sink interface {
	Dispatch(n domain.Notification)
}

const (
	subPublic = "sub-public"
	subUser   = "sub-user"
)

// Session owns the client's one connection. Reconnection is manual: a failed
// or dropped connection stays down until the surrounding flow calls Connect
// again.
type Session struct {
	endpoint string
	tokens   port.TokenSource
	sink     Sink

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	subscribed bool
	subStop    chan struct{}

	writeMu sync.Mutex

	ready *event.Signal
}

// NewSession builds a disconnected session against the websocket endpoint.
func NewSession(endpoint string, tokens port.TokenSource, sink Sink) *Session {
	return &Session{
		endpoint: endpoint,
		tokens:   tokens,
		sink:     sink,
		ready:    event.NewSignal(),
	}
}

// Connect dials the endpoint and performs the STOMP handshake. A no-op while
// already connected. The bearer token, when present, is appended as a query
// credential. Failures are not retried here.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	target := s.endpoint
	if token := s.tokens.Token(); token != "" {
		target += "?access_token=" + url.QueryEscape(token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.endpoint, err)
	}

	connect := stomp.NewFrame(stomp.CmdConnect, stomp.HdrAcceptVersion, "1.2")
	if err := conn.WriteMessage(websocket.TextMessage, connect.Encode()); err != nil {
		conn.Close()
		return fmt.Errorf("send CONNECT: %w", err)
	}
	frame, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	if frame == nil || frame.Command != stomp.CmdConnected {
		conn.Close()
		return fmt.Errorf("handshake: expected CONNECTED, got %v", frame)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	log.Info().Str("endpoint", s.endpoint).Msg("transport connected")
	s.ready.Set()
	go s.readLoop(conn)
	return nil
}

// Disconnect cancels the subscriptions, re-arms the ready signal and closes
// the socket. Safe to call when not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.subStop != nil {
		close(s.subStop)
		s.subStop = nil
	}
	s.subscribed = false
	conn := s.conn
	connected := s.connected
	s.conn = nil
	s.connected = false
	s.mu.Unlock()

	s.ready.Reset()
	if conn != nil {
		if connected {
			s.writeMu.Lock()
			_ = conn.WriteMessage(websocket.TextMessage, stomp.NewFrame(stomp.CmdDisconnect).Encode())
			s.writeMu.Unlock()
		}
		_ = conn.Close()
		log.Info().Msg("transport disconnected")
	}
}

// SubscribeToTopic registers the two inbound channels: the shared broadcast
// topic and the per-user queue. Guarded so it takes effect once per session
// lifetime; the actual SUBSCRIBE frames go out on each connected signal, so a
// manual reconnect resubscribes automatically.
func (s *Session) SubscribeToTopic(username string) {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return
	}
	s.subscribed = true
	stop := make(chan struct{})
	s.subStop = stop
	s.mu.Unlock()

	ready, cancel := s.ready.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-stop:
				return
			case _, ok := <-ready:
				if !ok {
					return
				}
				s.subscribe(subPublic, port.TopicPublic)
				s.subscribe(subUser, port.UserQueue(username))
			}
		}
	}()
}

func (s *Session) subscribe(id, destination string) {
	err := s.writeFrame(stomp.NewFrame(stomp.CmdSubscribe,
		stomp.HdrID, id,
		stomp.HdrDestination, destination,
	))
	if err != nil {
		log.Error().Err(err).Str("destination", destination).Msg("subscribe failed")
		return
	}
	log.Debug().Str("destination", destination).Msg("subscribed")
}

// Send serializes the notification and emits it on destination. A send while
// disconnected is silently dropped: no queuing, no retry.
func (s *Session) Send(destination string, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	frame := stomp.NewFrame(stomp.CmdSend,
		stomp.HdrDestination, destination,
		stomp.HdrContentType, "application/json",
	)
	frame.Body = body
	return s.writeFrame(frame)
}

// RequestOnlineUsers asks for the current presence snapshot. Effective only
// while the topic subscription is registered.
func (s *Session) RequestOnlineUsers() {
	if !s.subscriptionActive() {
		return
	}
	_ = s.writeFrame(stomp.NewFrame(stomp.CmdSend, stomp.HdrDestination, port.DestOnlineUsers))
}

// RequestUserStateUpdate announces the local user's presence state.
// Effective only while the topic subscription is registered.
func (s *Session) RequestUserStateUpdate(state domain.UserState) {
	if !s.subscriptionActive() {
		return
	}
	frame := stomp.NewFrame(stomp.CmdSend, stomp.HdrDestination, port.DestUpdateState)
	frame.Body = []byte(state)
	_ = s.writeFrame(frame)
}

// Ready subscribes to the connection-ready signal, replayed to late
// subscribers.
func (s *Session) Ready() (<-chan struct{}, func()) {
	return s.ready.Subscribe()
}

// Connected reports whether the handshake has completed and the socket is
// still believed up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) subscriptionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

func (s *Session) writeFrame(f *stomp.Frame) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()
	if !connected || conn == nil {
		log.Debug().Str("command", f.Command).Msg("not connected, dropping outbound frame")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, f.Encode())
}

// readLoop processes inbound frames strictly in arrival order until the
// socket drops. A malformed frame or body is dropped and logged; the loop
// continues.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("transport read failed")
			}
			s.markDown(conn)
			return
		}
		frame, err := stomp.Parse(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if frame == nil {
			continue // heartbeat
		}
		switch frame.Command {
		case stomp.CmdMessage:
			var n domain.Notification
			if err := json.Unmarshal(frame.Body, &n); err != nil {
				log.Warn().Err(err).Str("destination", frame.Header(stomp.HdrDestination)).
					Msg("dropping malformed notification")
				continue
			}
			s.sink.Dispatch(n)
		case stomp.CmdError:
			log.Error().Str("message", frame.Header(stomp.HdrMessage)).Msg("broker error frame")
		default:
			log.Debug().Str("command", frame.Command).Msg("ignoring unexpected frame")
		}
	}
}

// markDown flags the session disconnected after a read failure, but does not
// re-arm the ready signal: that is Disconnect's job, and reconnection is
// always caller-initiated.
func (s *Session) markDown(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.connected = false
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func readFrame(conn *websocket.Conn) (*stomp.Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	frame, err := stomp.Parse(data)
	if err != nil {
		return nil, err
	}
	return frame, nil
}
