// Package contextdriver adapts the Connection Manager to a concrete
// modem back-end: it holds the capability table for one
// registered driver plus the IP settings the driver populates during
// activation.
package contextdriver

import (
	"context"
	"fmt"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/dialect"
)

// Settings mirrors dialect.Settings; kept distinct so pdpcontext doesn't
// need to import dialect just to read what a binding populated.
type Settings struct {
	IPv4 *IPv4Settings
	IPv6 *IPv6Settings
}

type IPv4Settings struct {
	Interface string
	Method    string // "static" or "dhcp"
	Address   string
	Netmask   string
	Gateway   string
	DNS       []string
	Proxy     string // MMS override: a single Proxy entry replaces Method/Address
}

type IPv6Settings struct {
	Interface    string
	Address      string
	PrefixLength uint8
	Gateway      string
	DNS          []string
}

// Driver is the capability table a concrete back-end implements.
// ReadSettings and DetachShutdown are optional: HasReadSettings and
// HasDetachShutdown report whether the back-end supports them, and the
// Binding's methods of the same names return the driver's answers.
type Driver interface {
	ActivatePrimary(ctx context.Context, req dialect.ActivateRequest) (dialect.Settings, error)
	DeactivatePrimary(ctx context.Context, cid uint8) error
	ReadSettings(ctx context.Context, cid uint8) (dialect.Settings, error)
	DetachShutdown(ctx context.Context, cid uint8) error
	HasReadSettings() bool
	HasDetachShutdown() bool
	Remove()
}

// Binding is one registered ContextDriverBinding: a
// typed back-end bound to a fixed network interface, at most one
// PrimaryContext referencing it at a time (Inuse acting as a 0/1
// mutex), and the IP settings the driver wrote during the current
// activation.
type Binding struct {
	Type      common.ContextType
	Interface string
	Inuse     bool

	driver   Driver
	settings Settings
}

// New wraps driver as a Binding of the given type.
func New(typ common.ContextType, driver Driver) *Binding {
	return &Binding{Type: typ, driver: driver}
}

// Matches reports whether this binding can serve a context of typ: an
// exact type match, or an ANY-typed binding that exposes both
// activate_primary and deactivate_primary.
func (b *Binding) Matches(typ common.ContextType) bool {
	if b.Inuse {
		return false
	}
	if b.Type == typ {
		return true
	}
	return b.Type == common.ContextTypeAny
}

func (b *Binding) HasReadSettings() bool   { return b.driver.HasReadSettings() }
func (b *Binding) HasDetachShutdown() bool { return b.driver.HasDetachShutdown() }

// Acquire marks the binding in use; callers must already have confirmed
// Matches() and hold the Connection Manager's single-threaded context.
func (b *Binding) Acquire() {
	b.Inuse = true
	b.settings = Settings{}
}

// Release clears Inuse and drops any settings written by the driver,
// making the binding available for reassignment.
// Interface is part of the binding's fixed identity, not per-activation
// state, so it survives release.
func (b *Binding) Release() {
	b.Inuse = false
	b.settings = Settings{}
}

// ActivatePrimary issues the driver call and records the settings it
// returns against this binding.
func (b *Binding) ActivatePrimary(ctx context.Context, req dialect.ActivateRequest) (Settings, error) {
	s, err := b.driver.ActivatePrimary(ctx, req)
	if err != nil {
		return Settings{}, err
	}
	b.apply(s)
	return b.settings, nil
}

func (b *Binding) DeactivatePrimary(ctx context.Context, cid uint8) error {
	return b.driver.DeactivatePrimary(ctx, cid)
}

func (b *Binding) ReadSettings(ctx context.Context, cid uint8) (Settings, error) {
	s, err := b.driver.ReadSettings(ctx, cid)
	if err != nil {
		return Settings{}, err
	}
	b.apply(s)
	return b.settings, nil
}

func (b *Binding) DetachShutdown(ctx context.Context, cid uint8) error {
	return b.driver.DetachShutdown(ctx, cid)
}

func (b *Binding) Remove() { b.driver.Remove() }

func (b *Binding) apply(s dialect.Settings) {
	if s.IPv4 != nil {
		method := "dhcp"
		if s.IPv4.Static {
			method = "static"
		}
		b.settings.IPv4 = &IPv4Settings{
			Interface: b.Interface,
			Method:    method,
			Address:   s.IPv4.Address,
			Netmask:   s.IPv4.Netmask,
			Gateway:   s.IPv4.Gateway,
			DNS:       append([]string(nil), s.IPv4.DNS...),
		}
	}
	if s.IPv6 != nil {
		b.settings.IPv6 = &IPv6Settings{
			Interface:    b.Interface,
			Address:      s.IPv6.Address,
			PrefixLength: s.IPv6.PrefixLength,
			Gateway:      s.IPv6.Gateway,
			DNS:          append([]string(nil), s.IPv6.DNS...),
		}
	}
}

// SetIPv4PrefixLength synthesises a dotted netmask from a CIDR prefix
// length. A no-op if no IPv4 block was pre-allocated for
// this context's proto.
func (b *Binding) SetIPv4PrefixLength(prefix uint8) {
	if b.settings.IPv4 == nil {
		return
	}
	b.settings.IPv4.Netmask = prefixToNetmask(prefix)
}

func prefixToNetmask(prefix uint8) string {
	if prefix > 32 {
		prefix = 32
	}
	mask := [4]byte{}
	for i := 0; i < 4; i++ {
		bits := int(prefix) - i*8
		switch {
		case bits >= 8:
			mask[i] = 0xff
		case bits > 0:
			mask[i] = byte(0xff << (8 - bits))
		default:
			mask[i] = 0
		}
	}
	return fmt.Sprintf("%d.%d.%d.%d", mask[0], mask[1], mask[2], mask[3])
}

// CurrentSettings returns the current IP settings recorded for this binding's
// active context.
func (b *Binding) CurrentSettings() Settings { return b.settings }
