package connmgr

import (
	"time"

	"github.com/ofono-connman/connmand/common"
)

const suspendDebounce = 8 * time.Second

// suspendTimer debounces short radio suspensions (e.g. a voice call
// interrupting the packet channel) so GetProperties/Suspended signals
// don't flap for a blip the upper layers don't need to react to.
type suspendTimer struct {
	timer *time.Timer
}

// Suspended implements dialect.Observer. Causes that
// are immediate (e.g. Detached-adjacent) bypass the debounce; anything
// else waits out suspendDebounce before the Suspended property flips,
// matching the original's tolerance for brief radio interruptions.
func (m *Manager) Suspended(cause common.SuspendCause) {
	m.mu.Lock()
	if m.suspended {
		m.mu.Unlock()
		return
	}
	if cause.Immediate() {
		m.suspended = true
		m.cancelSuspendTimerLocked()
		m.mu.Unlock()
		m.onPropertyChanged("Suspended", true)
		return
	}
	if m.suspendTimer != nil && m.suspendTimer.timer != nil {
		m.mu.Unlock()
		return
	}
	t := time.AfterFunc(suspendDebounce, func() { m.fireSuspend() })
	m.suspendTimer = &suspendTimer{timer: t}
	m.mu.Unlock()
}

func (m *Manager) fireSuspend() {
	m.mu.Lock()
	if m.suspendTimer == nil {
		m.mu.Unlock()
		return
	}
	m.suspendTimer = nil
	already := m.suspended
	m.suspended = true
	m.mu.Unlock()
	if !already {
		m.onPropertyChanged("Suspended", true)
	}
}

// Resumed implements dialect.Observer: cancels any
// pending debounce and clears Suspended if it had latched.
func (m *Manager) Resumed() {
	m.mu.Lock()
	m.cancelSuspendTimerLocked()
	was := m.suspended
	m.suspended = false
	m.mu.Unlock()
	if was {
		m.onPropertyChanged("Suspended", false)
	}
}

func (m *Manager) cancelSuspendTimerLocked() {
	if m.suspendTimer != nil && m.suspendTimer.timer != nil {
		m.suspendTimer.timer.Stop()
	}
	m.suspendTimer = nil
}
