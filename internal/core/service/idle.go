package service

import (
	"sync"
	"time"

	"github.com/chatty-im/chatty/internal/core/domain"
)

const defaultIdleThreshold = 300 * time.Second

// IdleMonitor flips the local user to AWAY after a period without activity
// and restores the last persisted state when activity resumes. Because AWAY
// is never persisted, the restore is always the pre-idle state.
type IdleMonitor struct {
	threshold time.Duration
	presence  *Presence

	activity  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewIdleMonitor(presence *Presence, threshold time.Duration) *IdleMonitor {
	if threshold <= 0 {
		threshold = defaultIdleThreshold
	}
	return &IdleMonitor{
		threshold: threshold,
		presence:  presence,
		activity:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Touch records user activity. Non-blocking.
func (m *IdleMonitor) Touch() {
	select {
	case m.activity <- struct{}{}:
	default:
	}
}

// Watch runs the idle loop until Close.
func (m *IdleMonitor) Watch() {
	go func() {
		timer := time.NewTimer(m.threshold)
		defer timer.Stop()
		idle := false
		for {
			select {
			case <-m.done:
				return
			case <-timer.C:
				idle = true
				m.presence.SetState(domain.StateAway)
			case <-m.activity:
				if idle {
					idle = false
					m.presence.SetState(m.presence.StoredState())
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.threshold)
			}
		}
	}()
}

func (m *IdleMonitor) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}
