// Package event provides small typed publish/subscribe primitives used to
// fan out transport notifications to their consumers. Delivery is at-most-once
// except for Signal, which replays to late subscribers.
package event

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 32

// Stream fans a value out to every current subscriber. A subscriber that
// falls behind has the value dropped rather than blocking the publisher.
type Stream[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

func NewStream[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[chan T]struct{})}
}

// Subscribe registers a new listener. The returned cancel func must be called
// when the listener is done; it closes the channel.
func (s *Stream[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers v to all current subscribers.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- v:
		default:
			log.Warn().Msg("event subscriber buffer full, dropping value")
		}
	}
}

// Close cancels all subscribers.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// Signal is a latched one-shot notification. A subscriber that arrives after
// Set still observes the signal. Reset re-arms it for the next Set.
type Signal struct {
	mu    sync.Mutex
	fired bool
	subs  map[chan struct{}]struct{}
}

func NewSignal() *Signal {
	return &Signal{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a listener. If the signal has already fired, the
// channel is immediately readable.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.fired {
		ch <- struct{}{}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Set latches the signal and notifies all current subscribers. Calling Set
// again re-notifies them, so a listener registered across a reconnect sees
// every handshake.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = true
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Reset re-arms the signal. Existing subscribers stay registered and will be
// notified again on the next Set.
func (s *Signal) Reset() {
	s.mu.Lock()
	s.fired = false
	s.mu.Unlock()
}

// Fired reports whether the signal is currently latched.
func (s *Signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}
