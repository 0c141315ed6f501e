package service

import (
	"sync"
	"testing"
	"time"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
	"github.com/chatty-im/chatty/internal/event"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

type mapStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMapStore() *mapStore { return &mapStore{m: make(map[string]string)} }

func (s *mapStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *mapStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *mapStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

type sentEnvelope struct {
	dest string
	n    domain.Notification
}

type fakeTransport struct {
	mu             sync.Mutex
	sent           []sentEnvelope
	stateUpdates   []domain.UserState
	onlineRequests int
	ready          *event.Signal
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ready: event.NewSignal()}
}

func (f *fakeTransport) Send(destination string, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEnvelope{dest: destination, n: n})
	return nil
}

func (f *fakeTransport) RequestOnlineUsers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlineRequests++
}

func (f *fakeTransport) RequestUserStateUpdate(state domain.UserState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateUpdates = append(f.stateUpdates, state)
}

func (f *fakeTransport) Ready() (<-chan struct{}, func()) {
	return f.ready.Subscribe()
}

func (f *fakeTransport) sentOfKind(kind domain.NotificationKind) []sentEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEnvelope
	for _, e := range f.sent {
		if e.n.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) states() []domain.UserState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.UserState(nil), f.stateUpdates...)
}

// callLog records cross-fake actions in order, so tests can assert sequencing.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *callLog) index(entry string) int {
	for i, e := range l.snapshot() {
		if e == entry {
			return i
		}
	}
	return -1
}

type fakeSurface struct{ log *callLog }

func (s *fakeSurface) ShowPending(peer string, state domain.CallState) {
	s.log.add("surface:pending:" + string(state))
}
func (s *fakeSurface) ShowActive(peer string) { s.log.add("surface:active") }
func (s *fakeSurface) ShowError()             { s.log.add("surface:error") }
func (s *fakeSurface) Hide()                  { s.log.add("surface:hide") }

type fakeRinger struct{ log *callLog }

func (r *fakeRinger) Play() { r.log.add("ringer:play") }
func (r *fakeRinger) Stop() { r.log.add("ringer:stop") }

type fakeVideo struct {
	log     *callLog
	joinErr error
	events  *event.Stream[port.VideoEvent]
}

func newFakeVideo(log *callLog) *fakeVideo {
	return &fakeVideo{log: log, events: event.NewStream[port.VideoEvent]()}
}

func (v *fakeVideo) Join(displayName, roomID string) error {
	if v.joinErr != nil {
		return v.joinErr
	}
	v.log.add("video:join:" + roomID)
	return nil
}

func (v *fakeVideo) Leave() error {
	v.log.add("video:leave")
	return nil
}

func (v *fakeVideo) Events() (<-chan port.VideoEvent, func()) {
	return v.events.Subscribe()
}
