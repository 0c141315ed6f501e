package broker_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/chatty-im/chatty/internal/adapter/driven/gateway/ws"
	handler "github.com/chatty-im/chatty/internal/adapter/driving/http"
	"github.com/chatty-im/chatty/internal/broker"
	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
	"github.com/chatty-im/chatty/internal/core/service"
	"github.com/chatty-im/chatty/internal/stomp"
)

type staticToken string

func (t staticToken) Token() string { return string(t) }

type sink struct {
	ch chan domain.Notification
}

func newSink() *sink { return &sink{ch: make(chan domain.Notification, 64)} }

func (s *sink) Dispatch(n domain.Notification) { s.ch <- n }

// await returns the first notification matching pred, skipping others.
func (s *sink) await(t *testing.T, pred func(domain.Notification) bool, msg string) domain.Notification {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case n := <-s.ch:
			if pred(n) {
				return n
			}
		case <-deadline:
			t.Fatal(msg)
			return domain.Notification{}
		}
	}
}

func ofKind(kind domain.NotificationKind) func(domain.Notification) bool {
	return func(n domain.Notification) bool { return n.Type == kind }
}

func startBroker(t *testing.T) (string, *broker.Broker) {
	t.Helper()
	b := broker.New()
	srv := httptest.NewServer(handler.NewHandler(b).NewRouter())
	t.Cleanup(func() {
		b.Stop()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", b
}

// connectUser dials, subscribes and waits for the online-users snapshot that
// confirms the private queue is registered server-side.
func connectUser(t *testing.T, endpoint, login string) (*ws.Session, *sink) {
	t.Helper()
	s := newSink()
	sess := ws.NewSession(endpoint, staticToken(login), s)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Fatalf("Connect(%s) error = %v", login, err)
	}
	t.Cleanup(sess.Disconnect)
	sess.SubscribeToTopic(login)
	s.await(t, ofKind(domain.KindOnlineUsers), login+" never got the online-users snapshot")
	return sess, s
}

func TestConnectRequiresToken(t *testing.T) {
	endpoint, _ := startBroker(t)
	if _, _, err := websocket.DefaultDialer.Dial(endpoint, nil); err == nil {
		t.Fatal("dial without access_token succeeded")
	}
}

func TestConnectHandshake(t *testing.T) {
	endpoint, _ := startBroker(t)
	sess, _ := connectUser(t, endpoint, "alice")
	if !sess.Connected() {
		t.Error("Connected() = false after handshake")
	}

	// Connecting again while up is a no-op.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		t.Errorf("second Connect() error = %v", err)
	}
}

func TestPresenceAnnouncements(t *testing.T) {
	endpoint, _ := startBroker(t)
	_, aliceIn := connectUser(t, endpoint, "alice")
	_, _ = connectUser(t, endpoint, "bob")

	n := aliceIn.await(t, ofKind(domain.KindUserState), "alice never saw bob connect")
	if n.Meta(domain.MetaUser) != "bob" || n.Meta(domain.MetaState) != "ONLINE" {
		t.Errorf("announce metadata = %v", n.Metadata)
	}
	if !strings.Contains(n.Content, "bob") || !strings.Contains(n.Content, "Connected") {
		t.Errorf("announce content = %q", n.Content)
	}
}

func TestOnlineUsersSnapshotExcludesRequester(t *testing.T) {
	endpoint, _ := startBroker(t)
	connectUser(t, endpoint, "alice")
	connectUser(t, endpoint, "bob")
	carolSess, carolIn := connectUser(t, endpoint, "carol")

	// The subscribe-time snapshot was consumed by connectUser; ask explicitly.
	carolSess.RequestOnlineUsers()
	n := carolIn.await(t, ofKind(domain.KindOnlineUsers), "no snapshot on request")
	list, err := domain.DecodeUserList(n.Meta(domain.MetaUsers))
	if err != nil {
		t.Fatalf("DecodeUserList() error = %v", err)
	}
	seen := map[string]bool{}
	for _, u := range list {
		seen[u.Username] = true
	}
	if seen["carol"] {
		t.Error("snapshot includes the requester")
	}
	if !seen["alice"] || !seen["bob"] {
		t.Errorf("snapshot = %v", list)
	}
}

func TestStateUpdateFanOut(t *testing.T) {
	endpoint, _ := startBroker(t)
	aliceSess, _ := connectUser(t, endpoint, "alice")
	_, bobIn := connectUser(t, endpoint, "bob")

	aliceSess.RequestUserStateUpdate(domain.StateBusy)
	n := bobIn.await(t, func(n domain.Notification) bool {
		return n.Type == domain.KindUserState && n.Meta(domain.MetaState) == "BUSY"
	}, "bob never saw alice go BUSY")
	if n.Meta(domain.MetaUser) != "alice" {
		t.Errorf("USER = %q, want alice", n.Meta(domain.MetaUser))
	}
}

func TestCallSignalingRelay(t *testing.T) {
	endpoint, _ := startBroker(t)
	aliceSess, aliceIn := connectUser(t, endpoint, "alice")
	bobSess, bobIn := connectUser(t, endpoint, "bob")

	service.NewCallGateway(aliceSess).Invite("room-1", "alice")
	n := bobIn.await(t, ofKind(domain.KindIncomingCall), "bob never got the invite")
	if n.Content != "alice is calling you!" {
		t.Errorf("invite content = %q", n.Content)
	}
	if n.Meta(domain.MetaRoom) != "room-1" {
		t.Errorf("invite ROOM = %q", n.Meta(domain.MetaRoom))
	}
	caller, err := domain.DecodeUser(n.Meta(domain.MetaUser))
	if err != nil || caller.Login != "alice" {
		t.Errorf("invite USER = %q (err %v)", n.Meta(domain.MetaUser), err)
	}

	service.NewCallGateway(bobSess).Accept("room-1")
	n = aliceIn.await(t, ofKind(domain.KindAcceptedCall), "alice never got the accept")
	if n.Content != "bob accepted your call!" {
		t.Errorf("accept content = %q", n.Content)
	}
}

func TestMessageRelay(t *testing.T) {
	endpoint, _ := startBroker(t)
	aliceSess, _ := connectUser(t, endpoint, "alice")
	_, bobIn := connectUser(t, endpoint, "bob")

	service.NewCallGateway(aliceSess).Message("room-1", "hello bob")
	n := bobIn.await(t, ofKind(domain.KindIncomingMessage), "bob never got the message")
	if n.Content != "New message from alice" {
		t.Errorf("content = %q", n.Content)
	}
	if n.Meta(domain.MetaMessage) != "hello bob" {
		t.Errorf("MESSAGE = %q", n.Meta(domain.MetaMessage))
	}
}

func TestPresenceBroadcastOnSharedTopic(t *testing.T) {
	endpoint, _ := startBroker(t)

	// A bare session subscribed only to /topic/public, no private queue.
	conn, _, err := websocket.DefaultDialer.Dial(endpoint+"?access_token=alice", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	writeRaw := func(f *stomp.Frame) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, f.Encode()); err != nil {
			t.Fatalf("write %s: %v", f.Command, err)
		}
	}
	writeRaw(stomp.NewFrame(stomp.CmdConnect, stomp.HdrAcceptVersion, "1.2"))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("handshake read: %v", err)
	}
	if f, _ := stomp.Parse(data); f == nil || f.Command != stomp.CmdConnected {
		t.Fatalf("handshake frame = %v", f)
	}
	writeRaw(stomp.NewFrame(stomp.CmdSubscribe, stomp.HdrID, "sub-0", stomp.HdrDestination, port.TopicPublic))
	time.Sleep(50 * time.Millisecond)

	connectUser(t, endpoint, "bob")

	for {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("no broadcast on the shared topic: %v", err)
		}
		f, err := stomp.Parse(data)
		if err != nil || f == nil || f.Command != stomp.CmdMessage {
			continue
		}
		if f.Header(stomp.HdrDestination) != port.TopicPublic {
			t.Fatalf("MESSAGE destination = %q, want %q", f.Header(stomp.HdrDestination), port.TopicPublic)
		}
		var n domain.Notification
		if err := json.Unmarshal(f.Body, &n); err != nil {
			t.Fatalf("decode broadcast: %v", err)
		}
		if n.Type != domain.KindUserState || n.Meta(domain.MetaUser) != "bob" {
			continue
		}
		if n.Meta(domain.MetaState) != "ONLINE" {
			t.Errorf("STATE = %q, want ONLINE", n.Meta(domain.MetaState))
		}
		return
	}
}

func TestDisconnectAnnouncesOffline(t *testing.T) {
	endpoint, _ := startBroker(t)
	_, aliceIn := connectUser(t, endpoint, "alice")
	bobSess, _ := connectUser(t, endpoint, "bob")

	aliceIn.await(t, func(n domain.Notification) bool {
		return n.Type == domain.KindUserState && n.Meta(domain.MetaState) == "ONLINE"
	}, "alice never saw bob connect")

	bobSess.Disconnect()
	n := aliceIn.await(t, func(n domain.Notification) bool {
		return n.Type == domain.KindUserState && n.Meta(domain.MetaState) == "OFFLINE"
	}, "alice never saw bob disconnect")
	if n.Meta(domain.MetaUser) != "bob" {
		t.Errorf("USER = %q, want bob", n.Meta(domain.MetaUser))
	}
}
