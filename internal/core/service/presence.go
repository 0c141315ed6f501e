package service

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/port"
	"github.com/chatty-im/chatty/internal/event"
)

// Presence owns the local user's chosen state and the observed state of
// remote users. The locally chosen state is persisted so it survives a
// reload; AWAY is transient and never written, so resuming from idle restores
// the last persisted state.
type Presence struct {
	durable   port.StateStore
	session   port.StateStore
	transport port.Transport

	changed *event.Stream[domain.UserState]
	pending chan domain.UserState

	mu     sync.Mutex
	remote map[string]domain.UserState

	done      chan struct{}
	closeOnce sync.Once
}

func NewPresence(durable, session port.StateStore, transport port.Transport) *Presence {
	p := &Presence{
		durable:   durable,
		session:   session,
		transport: transport,
		changed:   event.NewStream[domain.UserState](),
		pending:   make(chan domain.UserState, 1),
		remote:    make(map[string]domain.UserState),
		done:      make(chan struct{}),
	}
	go p.announceLoop()
	return p
}

// SetState records the local user's state, emits a state-changed event and
// announces the state to the server once the transport is ready. AWAY is not
// persisted.
func (p *Presence) SetState(state domain.UserState) {
	if state != domain.StateAway {
		if err := p.session.Set(port.KeyUserState, string(state)); err != nil {
			log.Warn().Err(err).Msg("persisting user state to session store")
		}
		if err := p.durable.Set(port.KeyUserState, string(state)); err != nil {
			log.Warn().Err(err).Msg("persisting user state to durable store")
		}
	}
	p.changed.Publish(state)
	p.queueAnnounce(state)
}

// queueAnnounce keeps only the newest pending announcement; a state queued
// while the transport is down is superseded, never sent out of order.
func (p *Presence) queueAnnounce(state domain.UserState) {
	for {
		select {
		case p.pending <- state:
			return
		default:
			select {
			case <-p.pending:
			default:
			}
		}
	}
}

// announceLoop sends each queued state once the transport reports ready, so
// an announcement cannot race the handshake.
func (p *Presence) announceLoop() {
	for {
		select {
		case <-p.done:
			return
		case state := <-p.pending:
			ready, cancel := p.transport.Ready()
			select {
			case <-ready:
				cancel()
				p.transport.RequestUserStateUpdate(state)
			case <-p.done:
				cancel()
				return
			}
		}
	}
}

// StoredState returns the persisted state: durable store first, then the
// session store, then ONLINE as the default.
func (p *Presence) StoredState() domain.UserState {
	if v, ok := p.durable.Get(port.KeyUserState); ok && v != "" {
		return domain.UserState(v)
	}
	if v, ok := p.session.Get(port.KeyUserState); ok && v != "" {
		return domain.UserState(v)
	}
	return domain.StateOnline
}

// StateChanged subscribes to local state transitions.
func (p *Presence) StateChanged() (<-chan domain.UserState, func()) {
	return p.changed.Subscribe()
}

// Watch feeds the remote-user map from the router's presence and online-list
// streams until Close.
func (p *Presence) Watch(r *Router) {
	events, cancelEvents := r.Presence().Subscribe()
	lists, cancelLists := r.OnlineUsers().Subscribe()
	go func() {
		defer cancelEvents()
		defer cancelLists()
		for {
			select {
			case <-p.done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				p.setRemote(ev.User, ev.State)
			case list, ok := <-lists:
				if !ok {
					return
				}
				p.replaceRemote(list)
			}
		}
	}()
}

func (p *Presence) setRemote(username string, state domain.UserState) {
	if username == "" {
		return
	}
	p.mu.Lock()
	if state == domain.StateOffline {
		delete(p.remote, username)
	} else {
		p.remote[username] = state
	}
	p.mu.Unlock()
}

func (p *Presence) replaceRemote(list []domain.UserSocket) {
	p.mu.Lock()
	p.remote = make(map[string]domain.UserState, len(list))
	for _, u := range list {
		p.remote[u.Username] = u.State
	}
	p.mu.Unlock()
}

// RemoteStates returns a snapshot of the observed remote-user states.
func (p *Presence) RemoteStates() map[string]domain.UserState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]domain.UserState, len(p.remote))
	for k, v := range p.remote {
		out[k] = v
	}
	return out
}

// Close stops the watcher and any pending announcements.
func (p *Presence) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
