package connmgr

import (
	"context"

	"github.com/google/uuid"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/contextdriver"
	"github.com/ofono-connman/connmand/pdpcontext"
)

// Properties is the bus-visible ConnectionManager property set.
type Properties struct {
	Attached       bool
	Suspended      bool
	RoamingAllowed bool
	Powered        bool
	Status         string
	Bearer         string
}

// GetProperties renders current manager state.
func (m *Manager) GetProperties() Properties {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Properties{
		Attached:       m.attached,
		Suspended:      m.suspended,
		RoamingAllowed: m.roamingAllowed,
		Powered:        m.powered,
		Status:         m.status.String(),
		Bearer:         m.bearer.String(),
	}
}

// SetProperty implements the ConnectionManager.SetProperty method for
// the two user-writable properties. Powered and
// RoamingAllowed changes are persisted immediately and re-evaluate the
// attach state machine.
func (m *Manager) SetProperty(ctx context.Context, name string, value interface{}) error {
	switch name {
	case "Powered":
		v, ok := value.(bool)
		if !ok {
			return common.NewError(common.ErrInvalidArgs, "Powered expects bool")
		}
		return m.setPowered(ctx, v)
	case "RoamingAllowed":
		v, ok := value.(bool)
		if !ok {
			return common.NewError(common.ErrInvalidArgs, "RoamingAllowed expects bool")
		}
		return m.setRoamingAllowed(ctx, v)
	default:
		return common.NewError(common.ErrInvalidArgs, "unknown property %q", name)
	}
}

func (m *Manager) setPowered(ctx context.Context, v bool) error {
	m.mu.Lock()
	if m.powered == v {
		m.mu.Unlock()
		return nil
	}
	m.powered = v
	roaming := m.roamingAllowed
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveManagerPrefs(m.imsi, v, roaming); err != nil {
			m.log.Warn().Err(err).Msg("failed persisting Powered")
		}
	}
	m.onPropertyChanged("Powered", v)
	m.netregUpdate(ctx)
	return nil
}

func (m *Manager) setRoamingAllowed(ctx context.Context, v bool) error {
	m.mu.Lock()
	if m.roamingAllowed == v {
		m.mu.Unlock()
		return nil
	}
	m.roamingAllowed = v
	powered := m.powered
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveManagerPrefs(m.imsi, powered, v); err != nil {
			m.log.Warn().Err(err).Msg("failed persisting RoamingAllowed")
		}
	}
	m.onPropertyChanged("RoamingAllowed", v)
	m.netregUpdate(ctx)
	return nil
}

// ContextInfo pairs an object path with its rendered properties, the
// shape GetContexts returns.
type ContextInfo struct {
	Path       string
	Properties pdpcontext.Properties
}

// GetContexts lists every Primary Context path-ordered.
func (m *Manager) GetContexts() []ContextInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ContextInfo, 0, len(m.contexts))
	for _, c := range m.sortedContexts() {
		out = append(out, ContextInfo{Path: c.Path, Properties: c.GetProperties()})
	}
	return out
}

// AddContext creates a user-requested context of the given type and
// persists it. Busy policy: rejected while a
// manager-level request is already pending.
func (m *Manager) AddContext(name string, typ common.ContextType) (string, error) {
	m.mu.Lock()
	if err := m.beginPendingLocked(); err != nil {
		m.mu.Unlock()
		return "", err
	}
	c, err := m.addContextLocked(typ, name)
	m.endPendingLocked()
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	path := c.Path
	props := c.GetProperties()
	m.mu.Unlock()

	m.onContextAdded(path, props)
	return path, nil
}

// RemoveContext deactivates (if needed) and deletes a context.
func (m *Manager) RemoveContext(ctx context.Context, path string) error {
	m.mu.Lock()
	c := m.contextByPathLocked(path)
	if c == nil {
		m.mu.Unlock()
		return common.NewError(common.ErrNotFound, "no such context %q", path)
	}
	if c.Pending() {
		m.mu.Unlock()
		return common.NewError(common.ErrBusy, "context has a request pending")
	}
	active := c.Active()
	m.mu.Unlock()

	if active {
		if err := m.SetContextActive(ctx, path, false); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, cc := range m.contexts {
		if cc.Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return common.NewError(common.ErrNotFound, "no such context %q", path)
	}
	id := m.contexts[idx].ID
	m.contexts = append(m.contexts[:idx], m.contexts[idx+1:]...)
	delete(m.usedPIDs, id)
	if m.store != nil {
		if err := m.store.RemoveContext(m.imsi, id); err != nil {
			m.log.Warn().Err(err).Uint8("id", id).Msg("failed removing persisted context")
		}
	}
	m.onContextRemoved(path)
	return nil
}

// ResetContexts purges every non-active context and re-provisions from
// the provisioning DB, used after a SIM swap. Active and pending
// contexts are kept.
func (m *Manager) ResetContexts(ctx context.Context, mcc, mnc, spn string) error {
	m.mu.Lock()
	if err := m.beginPendingLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	var kept []*pdpcontext.Context
	var removed []string
	for _, c := range m.contexts {
		if c.Active() || c.Pending() {
			kept = append(kept, c)
			continue
		}
		delete(m.usedPIDs, c.ID)
		if m.store != nil {
			_ = m.store.RemoveContext(m.imsi, c.ID)
		}
		removed = append(removed, c.Path)
	}
	m.contexts = kept
	m.provisionLocked(mcc, mnc, spn)
	added := m.sortedContexts()
	m.endPendingLocked()
	m.mu.Unlock()

	for _, p := range removed {
		m.onContextRemoved(p)
	}
	for _, c := range added {
		m.onContextAdded(c.Path, c.GetProperties())
	}
	return nil
}

// DeactivateAll deactivates every active context; it backs the
// DeactivateAll D-Bus method. Rejected with busy while another manager-level
// request is pending; stops at the first deactivation failure and
// leaves contexts deactivated so far inactive.
func (m *Manager) DeactivateAll(ctx context.Context) error {
	m.mu.Lock()
	if err := m.beginPendingLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	var paths []string
	for _, c := range m.contexts {
		if c.Active() {
			paths = append(paths, c.Path)
		}
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.endPendingLocked()
		m.mu.Unlock()
	}()

	// A failure stops the sweep immediately, leaving whatever was
	// already deactivated inactive rather than pressing on.
	for _, p := range paths {
		if err := m.SetContextActive(ctx, p, false); err != nil {
			return err
		}
	}
	return nil
}

// SetContextActive implements ConnectionContext.SetProperty("Active").
// Activation picks a driver binding by type and a free cid from the
// dialect-advertised range; deactivation just issues the driver call.
func (m *Manager) SetContextActive(ctx context.Context, path string, active bool) error {
	m.mu.Lock()
	c := m.contextByPathLocked(path)
	if c == nil {
		m.mu.Unlock()
		return common.NewError(common.ErrNotFound, "no such context %q", path)
	}
	if active {
		if !m.attached {
			m.mu.Unlock()
			return common.NewError(common.ErrNotAttached, "not attached")
		}
		if m.f&flagAttaching != 0 {
			m.mu.Unlock()
			return common.NewError(common.ErrAttachInProcess, "attach in progress")
		}
	}

	reqID := uuid.NewString()
	log := m.log.With().Str("request_id", reqID).Str("path", path).Logger()

	if active {
		log.Debug().Msg("activating context")
		err := m.activateContext(ctx, c)
		if err != nil {
			log.Warn().Err(err).Msg("activation failed")
		} else {
			log.Debug().Msg("context activated")
		}
		return err
	}
	log.Debug().Msg("deactivating context")
	err := m.deactivateContext(ctx, c)
	if err != nil {
		log.Warn().Err(err).Msg("deactivation failed")
	} else {
		log.Debug().Msg("context deactivated")
	}
	return err
}

func (m *Manager) activateContext(ctx context.Context, c *pdpcontext.Context) error {
	if err := pdpcontext.ValidateAPN(c.APN, false); err != nil {
		m.mu.Unlock()
		return err
	}
	binding := m.findBindingLocked(c.Type())
	if binding == nil {
		m.mu.Unlock()
		return common.NewError(common.ErrFailed, "no driver registered for context type")
	}
	cid, ok := m.allocateCIDLocked()
	if !ok {
		m.mu.Unlock()
		return common.NewError(common.ErrFailed, "no free modem context ids")
	}
	if err := c.BeginActivation(cid, binding); err != nil {
		m.mu.Unlock()
		return err
	}
	m.usedCIDs[cid] = true
	path := c.Path
	m.mu.Unlock()

	settings, err := c.Activate(ctx)
	if err != nil {
		m.mu.Lock()
		delete(m.usedCIDs, cid)
		m.mu.Unlock()
		m.metrics.RecordActivationFailure(c.Type().String())
		return err
	}

	// An MMS context's returned settings hide the address behind the
	// proxy entry; netif still needs the address the driver reported.
	netifSettings := settings
	if cur := c.Binding().CurrentSettings(); cur.IPv4 != nil && settings.IPv4 != nil && settings.IPv4.Proxy != "" {
		v4 := *cur.IPv4
		v4.Proxy = settings.IPv4.Proxy
		netifSettings.IPv4 = &v4
	}
	if m.netif != nil && netifSettings.IPv4 != nil && netifSettings.IPv4.Interface != "" {
		if err := m.applyNetIf(netifSettings); err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("netif apply failed after activation")
		}
	}

	m.onPropertyChanged("ActiveContexts", path)
	m.onContextPropertyChanged(path, "Active", true)
	m.reportActiveContexts()
	return nil
}

func (m *Manager) deactivateContext(ctx context.Context, c *pdpcontext.Context) error {
	if err := c.BeginDeactivation(); err != nil {
		m.mu.Unlock()
		return err
	}
	cid := c.CID
	path := c.Path
	m.mu.Unlock()

	if err := c.Deactivate(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.usedCIDs, cid)
	m.mu.Unlock()

	m.onPropertyChanged("ActiveContexts", path)
	m.onContextPropertyChanged(path, "Active", false)
	m.reportActiveContexts()
	return nil
}

// applyNetIf drives the interface side effects a successful activation
// implies: bring the link up and assign the address
// the driver reported. Best-effort; failures are logged by the caller
// but never unwind the activation, matching the original's treatment
// of netif setup as independent of PDP context state.
func (m *Manager) applyNetIf(s contextdriver.Settings) error {
	if s.IPv4 == nil || s.IPv4.Interface == "" {
		return nil
	}
	iface := s.IPv4.Interface
	if err := m.netif.Up(iface); err != nil {
		return err
	}
	if s.IPv4.Address != "" {
		if err := m.netif.SetIPv4Address(iface, s.IPv4.Address, s.IPv4.Netmask); err != nil {
			return err
		}
	}
	if s.IPv4.Proxy != "" {
		if parsed, perr := pdpcontext.ParseProxy(s.IPv4.Proxy); perr == nil && parsed.Host != "" {
			if err := m.netif.InstallProxyRoute(iface, parsed.Host); err != nil {
				return err
			}
		}
	}
	return nil
}
