package service

import (
	"sync"
	"time"

	"github.com/chatty-im/chatty/internal/event"
)

const (
	defaultWatchdogTicks    = 30
	defaultWatchdogInterval = time.Second
)

// Watchdog is the single countdown used to auto-cancel an unanswered
// outgoing call. It counts up from zero; on reaching the maximum it resets
// itself and emits exactly one timeout event.
type Watchdog struct {
	maxTicks int
	interval time.Duration

	mu      sync.Mutex
	elapsed int
	stop    chan struct{}
	started bool

	timeout *event.Stream[struct{}]
}

// NewWatchdog creates a stopped watchdog. Zero values select the defaults
// (30 ticks at 1-second intervals).
func NewWatchdog(maxTicks int, interval time.Duration) *Watchdog {
	if maxTicks <= 0 {
		maxTicks = defaultWatchdogTicks
	}
	if interval <= 0 {
		interval = defaultWatchdogInterval
	}
	return &Watchdog{
		maxTicks: maxTicks,
		interval: interval,
		timeout:  event.NewStream[struct{}](),
	}
}

// Start begins the countdown. A no-op while already running.
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	w.elapsed = 0
	w.started = true
	stop := make(chan struct{})
	w.stop = stop
	w.mu.Unlock()
	go w.run(stop)
}

func (w *Watchdog) run(stop chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			select {
			case <-stop:
				// Reset raced the tick; the countdown is already over.
				w.mu.Unlock()
				return
			default:
			}
			w.elapsed++
			fired := w.elapsed >= w.maxTicks
			if fired {
				w.resetLocked()
			}
			w.mu.Unlock()
			if fired {
				w.timeout.Publish(struct{}{})
				return
			}
		}
	}
}

// Reset cancels the countdown and zeroes the elapsed counter. Safe to call
// when not running.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	w.resetLocked()
	w.mu.Unlock()
}

func (w *Watchdog) resetLocked() {
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	w.elapsed = 0
}

// Timeout subscribes to the timeout event.
func (w *Watchdog) Timeout() (<-chan struct{}, func()) {
	return w.timeout.Subscribe()
}

// Running reports whether the countdown is active.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop != nil
}

// Elapsed returns the current tick count.
func (w *Watchdog) Elapsed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

// Started reports whether Start has ever been called since construction.
func (w *Watchdog) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}
