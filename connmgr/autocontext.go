package connmgr

import (
	"context"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/pdpcontext"
)

// ContextAutoActivated implements dialect.Observer: the modem brought
// up a PDP context on its own (LTE default bearer, or a network-
// initiated activation) and reports its cid and APN. It matches
// an existing context by APN prefix, falling back to the first
// context with an empty APN, and creates a fresh internet context only
// if neither exists. This runs regardless of the manager's current
// attached state: on a cold-started LTE modem this event is itself
// what makes attached true, via syncAttachedFromContextsLocked.
func (m *Manager) ContextAutoActivated(cid uint8, apn string) {
	ctx := context.Background()

	m.mu.Lock()
	if m.usedCIDs[cid] {
		m.mu.Unlock()
		return
	}
	if err := pdpcontext.ValidateAPN(apn, true); err != nil {
		m.log.Warn().Str("apn", apn).Err(err).Msg("ignoring auto-activation with invalid apn")
		m.mu.Unlock()
		return
	}

	c := m.findUsableContextLocked(apn)
	createdStub := false
	if c == nil {
		var err error
		c, err = m.addContextLocked(common.ContextTypeInternet, "")
		if err != nil {
			m.log.Warn().Err(err).Msg("cannot add context for auto-activation")
			m.mu.Unlock()
			return
		}
		createdStub = true
	}

	binding := m.findBindingLocked(c.Type())
	if binding == nil || !binding.HasReadSettings() {
		m.log.Warn().Uint8("cid", cid).Msg("auto-activated context has no usable driver binding")
		m.mu.Unlock()
		return
	}

	wasEmpty := c.APN == ""
	if wasEmpty {
		c.APN = apn
	}
	binding.Acquire()
	m.usedCIDs[cid] = true
	path := c.Path
	m.mu.Unlock()

	settings, err := binding.ReadSettings(ctx, cid)
	if err != nil {
		m.mu.Lock()
		binding.Release()
		delete(m.usedCIDs, cid)
		m.mu.Unlock()
		m.log.Warn().Err(err).Uint8("cid", cid).Msg("failed reading settings for auto-activated context")
		return
	}

	m.mu.Lock()
	c.BindAuto(cid, binding)
	attached, attachedChanged := m.syncAttachedFromContextsLocked()
	m.mu.Unlock()

	if m.netif != nil && settings.IPv4 != nil && settings.IPv4.Interface != "" {
		if err := m.applyNetIf(settings); err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("netif apply failed after auto-activation")
		}
	}

	if attachedChanged {
		m.onPropertyChanged("Attached", attached)
		m.metrics.SetAttached(attached)
	}
	if wasEmpty {
		m.onPropertyChanged("AccessPointName", apn)
	}
	if createdStub {
		m.onContextAdded(path, c.GetProperties())
	}
	m.onPropertyChanged("ActiveContexts", path)
	m.onContextPropertyChanged(path, "Active", true)
	m.reportActiveContexts()
}

// ContextAutoDeactivated implements dialect.Observer: the network tore
// down a context the handset did not request deactivation for
// (an unsolicited PDN DEACT).
func (m *Manager) ContextAutoDeactivated(cid uint8) {
	m.mu.Lock()
	var c *pdpcontext.Context
	for _, ctxt := range m.contexts {
		if ctxt.CID == cid && ctxt.Active() {
			c = ctxt
			break
		}
	}
	if c == nil {
		m.mu.Unlock()
		return
	}
	delete(m.usedCIDs, cid)
	c.ForceRelease()
	path := c.Path
	attached, attachedChanged := m.syncAttachedFromContextsLocked()
	m.mu.Unlock()

	m.onPropertyChanged("ActiveContexts", path)
	m.onContextPropertyChanged(path, "Active", false)
	m.reportActiveContexts()
	if attachedChanged {
		m.onPropertyChanged("Attached", attached)
		m.metrics.SetAttached(attached)
	}
}

// findUsableContextLocked mirrors find_usable_context: prefer an exact
// APN-prefix match, otherwise the first context with no APN configured
// yet (a provisioning-failed stub waiting to be claimed).
func (m *Manager) findUsableContextLocked(apn string) *pdpcontext.Context {
	var stub *pdpcontext.Context
	for _, c := range m.contexts {
		if c.Active() || c.Pending() {
			continue
		}
		if c.MatchesAPNPrefix(apn) {
			return c
		}
		if c.APN == "" && stub == nil {
			stub = c
		}
	}
	return stub
}

// addContextLocked mirrors add_context: allocates a fresh path id and
// installs a new stub context of the given type.
func (m *Manager) addContextLocked(typ common.ContextType, name string) (*pdpcontext.Context, error) {
	id, ok := m.allocatePIDLocked()
	if !ok {
		return nil, common.NewError(common.ErrFailed, "no free context ids")
	}
	c := pdpcontext.New(id, typ)
	if name != "" {
		c.Name = name
	}
	c.Path = m.contextPath(id)
	m.usedPIDs[id] = true
	if id > m.lastContextID {
		m.lastContextID = id
	}
	m.contexts = append(m.contexts, c)
	m.persistContextLocked(c)
	return c, nil
}
