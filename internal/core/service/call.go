package service

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
	"github.com/chatty-im/chatty/internal/event"
)

// ErrCallActive is returned when a new outgoing call is attempted while a
// call is already tracked.
var ErrCallActive = errors.New("a call is already active")

// CallMachine coordinates the call lifecycle: it reacts to local actions and
// remote signaling, drives the call surface and ringtone, starts the watchdog
// for outgoing calls and joins the video session on accept. Exactly one call
// is tracked at a time; a second incoming invite while a call is active is
// auto-rejected as busy.
type CallMachine struct {
	selfName string
	gateway  *CallGateway
	watchdog *Watchdog
	surface  port.CallSurface
	ringer   port.Ringer
	video    port.VideoBridge

	mu      sync.Mutex
	session domain.CallSession

	changed *event.Stream[domain.CallSession]

	done      chan struct{}
	closeOnce sync.Once
}

func NewCallMachine(selfName string, gateway *CallGateway, watchdog *Watchdog, surface port.CallSurface, ringer port.Ringer, video port.VideoBridge) *CallMachine {
	return &CallMachine{
		selfName: selfName,
		gateway:  gateway,
		watchdog: watchdog,
		surface:  surface,
		ringer:   ringer,
		video:    video,
		session:  domain.CallSession{State: domain.CallIdle},
		changed:  event.NewStream[domain.CallSession](),
		done:     make(chan struct{}),
	}
}

// Changed subscribes to call-session transitions.
func (m *CallMachine) Changed() (<-chan domain.CallSession, func()) {
	return m.changed.Subscribe()
}

// Session returns the current call session.
func (m *CallMachine) Session() domain.CallSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Run wires the machine to the router's call-state stream, the watchdog
// timeout and the video-bridge events until Close.
func (m *CallMachine) Run(router *Router) {
	calls, cancelCalls := router.CallState().Subscribe()
	timeouts, cancelTimeout := m.watchdog.Timeout()
	videoEvents, cancelVideo := m.video.Events()
	go func() {
		defer cancelCalls()
		defer cancelTimeout()
		defer cancelVideo()
		for {
			select {
			case <-m.done:
				return
			case ev, ok := <-calls:
				if !ok {
					return
				}
				m.handleRemote(ev)
			case _, ok := <-timeouts:
				if !ok {
					return
				}
				m.handleTimeout()
			case ev, ok := <-videoEvents:
				if !ok {
					return
				}
				m.handleVideo(ev)
			}
		}
	}()
}

// MakeCall initiates an outgoing call to the members of roomID. The surface
// opens in pending mode, the invite envelope goes out and the watchdog
// starts.
func (m *CallMachine) MakeCall(roomID, peerName string) error {
	m.mu.Lock()
	if m.session.Active() {
		m.mu.Unlock()
		return ErrCallActive
	}
	m.setSessionLocked(domain.CallSession{RoomID: roomID, PeerName: peerName, State: domain.CallOutgoing})
	m.mu.Unlock()

	m.surface.ShowPending(peerName, domain.CallOutgoing)
	m.gateway.Invite(roomID, m.selfName)
	m.watchdog.Start()
	return nil
}

// Accept answers the pending incoming call.
func (m *CallMachine) Accept() {
	m.mu.Lock()
	if m.session.State != domain.CallIncoming {
		m.mu.Unlock()
		return
	}
	roomID, peer := m.session.RoomID, m.session.PeerName
	m.setSessionLocked(domain.CallSession{RoomID: roomID, PeerName: peer, State: domain.CallAccepted})
	m.mu.Unlock()

	m.ringer.Stop()
	m.watchdog.Reset()
	m.gateway.Accept(roomID)
	// ShowActive returns once the surface finished opening; the video join is
	// sequenced after it rather than after a fixed delay.
	m.surface.ShowActive(peer)
	m.joinVideo(roomID)
}

// Reject declines the pending incoming call.
func (m *CallMachine) Reject() {
	m.mu.Lock()
	if m.session.State != domain.CallIncoming {
		m.mu.Unlock()
		return
	}
	roomID := m.session.RoomID
	m.mu.Unlock()

	m.ringer.Stop()
	m.gateway.Reject(roomID)
	m.finish(domain.CallRejected)
}

// Cancel withdraws the pending outgoing call.
func (m *CallMachine) Cancel() {
	m.mu.Lock()
	if m.session.State != domain.CallOutgoing {
		m.mu.Unlock()
		return
	}
	roomID := m.session.RoomID
	m.mu.Unlock()

	m.ringer.Stop()
	m.watchdog.Reset()
	m.gateway.Cancel(roomID)
	m.finish(domain.CallCancelled)
}

// Hangup leaves the in-call state, tearing down the video session.
func (m *CallMachine) Hangup() {
	m.mu.Lock()
	state := m.session.State
	m.mu.Unlock()
	if state != domain.CallAccepted && state != domain.CallError {
		return
	}
	if err := m.video.Leave(); err != nil {
		log.Warn().Err(err).Msg("leaving video session")
	}
	m.finish(domain.CallIdle)
}

func (m *CallMachine) handleRemote(ev domain.CallEvent) {
	switch ev.State {
	case domain.CallIncoming:
		m.mu.Lock()
		if m.session.Active() {
			m.mu.Unlock()
			// Busy: a call is already tracked, decline the new invite.
			log.Info().Str("room", ev.Room).Msg("busy, auto-rejecting incoming call")
			m.gateway.Reject(ev.Room)
			return
		}
		m.setSessionLocked(domain.CallSession{RoomID: ev.Room, PeerName: ev.User.Login, State: domain.CallIncoming})
		m.mu.Unlock()
		m.surface.ShowPending(ev.User.Login, domain.CallIncoming)
		m.ringer.Play()

	case domain.CallAccepted:
		m.mu.Lock()
		if m.session.State != domain.CallOutgoing && m.session.State != domain.CallIncoming {
			m.mu.Unlock()
			return
		}
		if ev.Room != "" && ev.Room != m.session.RoomID {
			m.mu.Unlock()
			return
		}
		peer := m.session.PeerName
		if ev.User.Login != "" {
			peer = ev.User.Login
		}
		m.setSessionLocked(domain.CallSession{RoomID: ev.Room, PeerName: peer, State: domain.CallAccepted})
		m.mu.Unlock()
		m.ringer.Stop()
		m.watchdog.Reset()
		m.surface.ShowActive(peer)
		m.joinVideo(ev.Room)

	case domain.CallRejected, domain.CallCancelled:
		m.mu.Lock()
		// Join-all fan-out means every client sees every signal; only the
		// tracked call's room may end it.
		if !m.session.Active() || (ev.Room != "" && ev.Room != m.session.RoomID) {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.ringer.Stop()
		m.watchdog.Reset()
		m.finish(ev.State)
	}
}

// handleTimeout auto-cancels the unanswered outgoing call. Only a pending
// outgoing call (a tracked room id) is eligible; the watchdog has already
// reset itself by the time this fires.
func (m *CallMachine) handleTimeout() {
	m.mu.Lock()
	if m.session.State != domain.CallOutgoing || m.session.RoomID == "" {
		m.mu.Unlock()
		return
	}
	roomID := m.session.RoomID
	m.mu.Unlock()

	log.Info().Str("room", roomID).Msg("call unanswered, cancelling")
	m.ringer.Stop()
	m.gateway.Cancel(roomID)
	m.finish(domain.CallCancelled)
}

func (m *CallMachine) handleVideo(ev port.VideoEvent) {
	if ev.Kind != port.VideoConferenceLeft {
		return
	}
	m.mu.Lock()
	accepted := m.session.State == domain.CallAccepted
	m.mu.Unlock()
	if accepted {
		m.finish(domain.CallIdle)
	}
}

// joinVideo enters the conference; a failed join surfaces as the error call
// state and sends no envelope.
func (m *CallMachine) joinVideo(roomID string) {
	if err := m.video.Join(m.selfName, roomID); err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("video session creation failed")
		m.mu.Lock()
		m.session.State = domain.CallError
		m.session.IsError = true
		session := m.session
		m.mu.Unlock()
		m.surface.ShowError()
		m.changed.Publish(session)
	}
}

// finish folds a terminal transition back to IDLE, closing the surface. The
// transient display state (REJECTED/CANCELLED) is published before IDLE.
func (m *CallMachine) finish(via domain.CallState) {
	m.surface.Hide()
	m.mu.Lock()
	if via != domain.CallIdle {
		m.session.State = via
		m.changed.Publish(m.session)
	}
	m.setSessionLocked(domain.CallSession{State: domain.CallIdle})
	m.mu.Unlock()
}

// setSessionLocked replaces the session and publishes the transition. Callers
// hold m.mu.
func (m *CallMachine) setSessionLocked(s domain.CallSession) {
	m.session = s
	m.changed.Publish(s)
}

// Close stops the machine. The watchdog is reset here so a session teardown
// mid-call cannot leave the countdown running.
func (m *CallMachine) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.watchdog.Reset()
		m.ringer.Stop()
	})
}
