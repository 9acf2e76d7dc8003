package connmgr

import (
	"context"

	"github.com/ofono-connman/connmand/common"
)

// netregUpdate recomputes the desired attach state from the last known
// registration status, Powered and RoamingAllowed, and drives the
// attach state machine toward it. It is the
// Go-native equivalent of gprs_netreg_update: where the original
// fires an async driver call and waits for a callback, our Dialect
// calls block until the modem replies, so the whole update happens in
// one synchronous pass guarded by flagAttaching against re-entry.
func (m *Manager) netregUpdate(ctx context.Context) {
	m.mu.Lock()
	if m.dial == nil {
		m.mu.Unlock()
		return
	}
	if m.onLTELocked() {
		// Under the LTE auto-attach bypass, attached state follows the
		// context-driver's own activations (see
		// syncAttachedFromContextsLocked); there is no classic
		// set_attached call to drive here.
		m.mu.Unlock()
		return
	}
	want := m.wantAttachedLocked()
	if m.f&flagAttaching != 0 {
		m.f |= flagRecheck
		m.mu.Unlock()
		return
	}
	if want == m.driverAttached {
		m.mu.Unlock()
		return
	}
	m.f |= flagAttaching
	m.mu.Unlock()

	m.driveAttach(ctx, want)
}

// wantAttachedLocked implements the original's "should we be attached"
// test: powered, and registered (or roaming with roaming allowed).
func (m *Manager) wantAttachedLocked() bool {
	if !m.powered {
		return false
	}
	if !m.status.Registered() {
		return false
	}
	if m.status.Roaming() && !m.roamingAllowed {
		return false
	}
	return true
}

// driveAttach issues the attach/detach call to the dialect layer and
// folds the result back into manager state.
func (m *Manager) driveAttach(ctx context.Context, want bool) {
	err := m.dial.SetAttached(ctx, want)

	m.mu.Lock()
	m.f &^= flagAttaching
	recheck := m.f&flagRecheck != 0
	m.f &^= flagRecheck
	if err != nil {
		m.log.Warn().Err(err).Bool("want", want).Msg("set attached failed")
		m.mu.Unlock()
		if recheck {
			m.netregUpdate(ctx)
		}
		return
	}

	m.driverAttached = want
	changed := m.attached != want
	m.attached = want
	if !want {
		m.bearer = common.BearerNone
	}
	m.mu.Unlock()

	if changed {
		m.onPropertyChanged("Attached", want)
		m.metrics.SetAttached(want)
		if !want {
			m.detachActiveContexts(ctx)
		}
	}

	if recheck {
		m.netregUpdate(ctx)
	}
}

// RegistrationStatusChanged implements dialect.Observer: a +CGREG (or
// equivalent) unsolicited update arrived from the modem.
func (m *Manager) RegistrationStatusChanged(status common.RegStatus, lac, ci int, tech string) {
	m.mu.Lock()
	prev := m.status
	m.status = status
	if tech != "" {
		m.lte = common.IsLTEAccessTechnology(tech)
	}
	m.mu.Unlock()

	if prev != status {
		m.onPropertyChanged("Status", status.String())
	}
	m.netregUpdate(context.Background())
}

// BearerChanged implements dialect.Observer.
func (m *Manager) BearerChanged(bearer common.Bearer) {
	m.mu.Lock()
	changed := m.bearer != bearer
	m.bearer = bearer
	m.mu.Unlock()
	if changed {
		m.onPropertyChanged("Bearer", bearer.String())
		m.metrics.SetBearer(bearer.String())
	}
}

// Detached implements dialect.Observer: the modem reported it dropped
// attach state entirely out of band.
func (m *Manager) Detached() {
	m.mu.Lock()
	m.driverAttached = false
	changed := m.attached
	m.attached = false
	m.bearer = common.BearerNone
	m.mu.Unlock()

	if changed {
		m.onPropertyChanged("Attached", false)
	}
	m.detachActiveContexts(context.Background())
	m.netregUpdate(context.Background())
}

// detachActiveContexts force-releases every active context without a
// driver round trip, since the attach that carried them is already
// gone.
func (m *Manager) detachActiveContexts(ctx context.Context) {
	m.mu.Lock()
	var paths []string
	for _, c := range m.contexts {
		if c.Active() || c.Pending() {
			c.ForceRelease()
			paths = append(paths, c.Path)
		}
	}
	m.mu.Unlock()

	for _, p := range paths {
		m.onPropertyChanged("ActiveContexts", p)
		m.onContextPropertyChanged(p, "Active", false)
	}
	m.reportActiveContexts()
}
