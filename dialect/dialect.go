// Package dialect is the modem dialect layer: it negotiates
// features at probe time, subscribes to the right notification set on
// the transport, and translates wire-level frames and unsolicited lines
// into the semantic callbacks the Connection Manager and its context
// drivers consume. Concrete vendors are tagged variants sharing this
// operation table.
package dialect

import (
	"context"

	"github.com/ofono-connman/connmand/common"
)

// Vendor tags a concrete dialect implementation.
type Vendor int

const (
	VendorGeneric Vendor = iota
	VendorQuectel
	VendorUBlox
	VendorGobi
)

func (v Vendor) String() string {
	switch v {
	case VendorQuectel:
		return "quectel"
	case VendorUBlox:
		return "ublox"
	case VendorGobi:
		return "gobi"
	default:
		return "generic"
	}
}

// Settings is the IP configuration a driver reports after a successful
// activation or read-settings (shared with contextdriver.Settings; kept
// as its own type here to avoid an import cycle, contextdriver converts).
type Settings struct {
	IPv4 *IPv4Settings
	IPv6 *IPv6Settings
}

type IPv4Settings struct {
	Static  bool
	Address string
	Netmask string
	Gateway string
	DNS     []string
}

type IPv6Settings struct {
	Address      string
	PrefixLength uint8
	Gateway      string
	DNS          []string
}

// ActivateRequest is what the Connection Manager asks a dialect to
// activate on the modem for one Primary Context.
type ActivateRequest struct {
	CID        uint8
	APN        string
	Username   string
	Password   string
	Proto      common.Proto
	AuthMethod common.AuthMethod
}

// Observer receives the semantic callbacks a dialect emits as it parses
// unsolicited lines and command responses.
// The Connection Manager implements this; a dialect never reaches back
// into connmgr's state directly.
type Observer interface {
	RegistrationStatusChanged(status common.RegStatus, lac, ci int, tech string)
	BearerChanged(bearer common.Bearer)
	Suspended(cause common.SuspendCause)
	Resumed()
	ContextAutoActivated(cid uint8, apn string)
	ContextAutoDeactivated(cid uint8)
	Detached()
}

// Dialect is the per-modem negotiated operation table.
type Dialect interface {
	Vendor() Vendor

	// Probe negotiates supported PDP types, registration-report and
	// event-report modes, and subscribes dialect notification handlers
	// on the transport. It must be called once
	// before any other method.
	Probe(ctx context.Context) error

	// CIDRange reports the modem-advertised context-id range, learned
	// during Probe.
	CIDRange() (min, max uint8)

	SetAttached(ctx context.Context, attach bool) error
	AttachedStatus(ctx context.Context) (common.RegStatus, error)
	ListActiveContexts(ctx context.Context) ([]uint8, error)
	ActivatePrimary(ctx context.Context, req ActivateRequest) (Settings, error)
	DeactivatePrimary(ctx context.Context, cid uint8) error

	// ReadSettings is optional: implementations that cannot read back
	// settings for a modem-activated context return common.ErrNotImplemented.
	ReadSettings(ctx context.Context, cid uint8) (Settings, error)
	// DetachShutdown is optional, used for forced teardown of a
	// detachable active context.
	DetachShutdown(ctx context.Context, cid uint8) error

	// HasReadSettings reports whether ReadSettings is a real
	// implementation rather than the NotImplemented stub, without
	// having to call it.
	HasReadSettings() bool
	// HasDetachShutdown mirrors HasReadSettings for DetachShutdown.
	HasDetachShutdown() bool
}
