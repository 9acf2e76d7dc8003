// Package pdpcontext implements the Primary Context entity:
// a per-APN configuration exposed to bus subscribers, and its
// activation lifecycle against a bound ContextDriverBinding.
package pdpcontext

import (
	"context"
	"fmt"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/contextdriver"
	"github.com/ofono-connman/connmand/dialect"
)

// State is the activation lifecycle state.
type State int

const (
	StateInactive State = iota
	StateActivating
	StateActive
	StateDeactivating
)

func (s State) String() string {
	switch s {
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	default:
		return "inactive"
	}
}

// Context is one Primary Context. Path is derived by the
// owning Connection Manager from its own path plus ID; Context itself
// only knows its stable numeric ID.
type Context struct {
	ID   uint8 // stable, 1..255
	Path string

	state State
	typ   common.ContextType

	Name          string
	APN           string
	Username      string
	Password      string
	Proto         common.Proto
	AuthMethod    common.AuthMethod
	MessageProxy  string
	MessageCenter string

	preferred bool // internal MMS-selection bookkeeping, not a bus property

	CID     uint8 // modem id; 0 when inactive
	binding *contextdriver.Binding

	ProxyHost string
	ProxyPort uint16

	pending bool // exclusive per-context request in flight
}

// New creates a context stub of the given type with a defaulted name.
func New(id uint8, typ common.ContextType) *Context {
	return &Context{
		ID:         id,
		typ:        typ,
		Name:       typ.DefaultName(),
		Proto:      common.ProtoIP,
		AuthMethod: common.AuthCHAP,
	}
}

func (c *Context) Type() common.ContextType { return c.typ }
func (c *Context) State() State             { return c.state }
func (c *Context) Active() bool             { return c.state == StateActive }
func (c *Context) Pending() bool            { return c.pending }
func (c *Context) Binding() *contextdriver.Binding { return c.binding }

// SetType replaces the context's type. Nothing in this module calls it,
// so Type stays fixed for the lifetime of the context.
func (c *Context) SetType(t common.ContextType) { c.typ = t }

// CanMutate reports whether non-Active properties may be changed: every
// setter but Active is read-only while active.
func (c *Context) CanMutate() error {
	if c.Active() {
		return common.NewError(common.ErrNotAllowed, "context is active")
	}
	return nil
}

// BeginActivation transitions INACTIVE -> ACTIVATING, allocating cid and
// binding. Callers (Connection Manager) have already chosen cid and
// binding per the shared used_cids/bindings bookkeeping;
// Context just records them and marks itself pending.
func (c *Context) BeginActivation(cid uint8, binding *contextdriver.Binding) error {
	if c.state != StateInactive {
		return common.NewError(common.ErrBusy, "context is not inactive")
	}
	if c.pending {
		return common.NewError(common.ErrBusy, "request already pending")
	}
	c.state = StateActivating
	c.pending = true
	c.CID = cid
	c.binding = binding
	binding.Acquire()
	return nil
}

// Activate issues the driver activate_primary call and, on success,
// computes proxy host/port for MMS contexts.
// It does not itself bring the interface up or assign addresses; the
// caller (Connection Manager) drives netif side effects from the
// returned settings, as those are shared infrastructure, not context
// state.
func (c *Context) Activate(ctx context.Context) (contextdriver.Settings, error) {
	req := dialect.ActivateRequest{
		CID:        c.CID,
		APN:        c.APN,
		Username:   c.Username,
		Password:   c.Password,
		Proto:      c.Proto,
		AuthMethod: c.AuthMethod,
	}
	settings, err := c.binding.ActivatePrimary(ctx, req)
	if err != nil {
		c.abortActivation()
		return contextdriver.Settings{}, err
	}

	if c.typ == common.ContextTypeMMS {
		parsed, perr := ParseProxy(c.MessageProxy)
		if perr == nil {
			c.ProxyHost, c.ProxyPort = parsed.Host, parsed.Port
		}
		settings = c.mmsOverrideSettings(settings)
	}

	c.state = StateActive
	c.pending = false
	return settings, nil
}

// mmsOverrideSettings replaces the IPv4 Method/Address view with a
// single Proxy entry equal to the original MessageProxy string: the
// Settings property carries a Proxy key for MMS contexts and no
// Method/Address keys.
func (c *Context) mmsOverrideSettings(s contextdriver.Settings) contextdriver.Settings {
	if s.IPv4 == nil {
		return s
	}
	out := s
	v4 := *s.IPv4
	v4.Proxy = c.MessageProxy
	v4.Method = ""
	v4.Address = ""
	out.IPv4 = &v4
	return out
}

func (c *Context) abortActivation() {
	b := c.binding
	c.state = StateInactive
	c.pending = false
	c.CID = 0
	c.binding = nil
	if b != nil {
		b.Release()
	}
}

// AbortActivation is the exported form of abortActivation: it returns
// the context to INACTIVE and releases its binding. The Connection
// Manager does not call it.
func (c *Context) AbortActivation() { c.abortActivation() }

// BeginDeactivation transitions ACTIVE -> DEACTIVATING.
func (c *Context) BeginDeactivation() error {
	if c.state != StateActive {
		return common.NewError(common.ErrNotAllowed, "context is not active")
	}
	if c.pending {
		return common.NewError(common.ErrBusy, "request already pending")
	}
	c.state = StateDeactivating
	c.pending = true
	return nil
}

// Deactivate issues the driver deactivate_primary call and releases cid
// and binding on success.
func (c *Context) Deactivate(ctx context.Context) error {
	err := c.binding.DeactivatePrimary(ctx, c.CID)
	c.pending = false
	if err != nil {
		c.state = StateActive
		return err
	}
	c.release()
	return nil
}

// ForceRelease tears the context down without a driver round-trip, used
// on modem loss.
func (c *Context) ForceRelease() {
	c.release()
}

func (c *Context) release() {
	b := c.binding
	c.state = StateInactive
	c.pending = false
	c.CID = 0
	c.binding = nil
	c.ProxyHost = ""
	c.ProxyPort = 0
	if b != nil {
		b.Release()
	}
}

// BindAuto transitions a context straight to ACTIVE for the
// modem-initiated auto-activation path: no
// ACTIVATING intermediate state since there is no user request to keep
// pending. The caller has already bound cid to binding and driven
// ReadSettings, which records settings on the binding itself.
func (c *Context) BindAuto(cid uint8, binding *contextdriver.Binding) {
	c.CID = cid
	c.binding = binding
	c.state = StateActive
}

// MatchesAPNPrefix reports whether apn is a prefix-match candidate for
// this context's configured APN, used by the auto-activation matcher.
func (c *Context) MatchesAPNPrefix(apn string) bool {
	if c.APN == "" || apn == "" {
		return false
	}
	if len(apn) < len(c.APN) {
		return false
	}
	return apn[:len(c.APN)] == c.APN
}

func (c *Context) String() string {
	return fmt.Sprintf("context[%d]{type=%s apn=%q state=%s}", c.ID, c.typ, c.APN, c.state)
}
