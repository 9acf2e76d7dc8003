// Package connmgr implements the Connection Manager: the
// per-modem owner of the Primary Context list and the attach state
// machine, arbitrating manager- and context-level requests against the
// dialect layer and its registered context driver bindings.
package connmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/contextdriver"
	"github.com/ofono-connman/connmand/dialect"
	"github.com/ofono-connman/connmand/logging"
	"github.com/ofono-connman/connmand/pdpcontext"
)

const maxContexts = 256

// flags mirrors the original's GPRS_FLAG_* bitmask.
type flags uint8

const (
	flagAttaching flags = 1 << iota
	flagRecheck
	flagAttachedUpdate
)

// NetIf is the side-effect surface the manager drives on activation
// (Up, SetIPv4Address, InstallProxyRoute). Implemented by package netif.
// The manager never calls Down or RemoveProxyRoute: deactivation leaves
// the interface, its address and any proxy route in place.
type NetIf interface {
	Up(iface string) error
	Down(iface string) error
	SetIPv4Address(iface, address, netmask string) error
	InstallProxyRoute(iface, host string) error
	RemoveProxyRoute(iface, host string) error
}

// Persistence is the settings-store surface the manager uses to persist
// Powered/RoamingAllowed and per-context properties.
type Persistence interface {
	LoadManagerPrefs(imsi string) (powered, roamingAllowed bool, err error)
	SaveManagerPrefs(imsi string, powered, roamingAllowed bool) error
	LoadContexts(imsi string) ([]ContextRecord, error)
	SaveContext(imsi string, rec ContextRecord) error
	RemoveContext(imsi string, id uint8) error
}

// ContextRecord is the persisted shape of one context.
type ContextRecord struct {
	ID                   uint8
	Name                 string
	Type                 common.ContextType
	Protocol             common.Proto
	AccessPointName      string
	Username             string
	Password             string
	AuthenticationMethod common.AuthMethod
	MessageProxy         string
	MessageCenter        string
}

// Provisioner is the provisioning DB lookup surface.
type Provisioner interface {
	Lookup(mcc, mnc, spn string) ([]ContextRecord, error)
}

// MetricsSink receives attach/activation telemetry. Implemented by package metrics; nil is a valid no-op sink.
type MetricsSink interface {
	SetAttached(attached bool)
	SetActiveContexts(n int)
	SetBearer(name string)
	RecordActivationFailure(contextType string)
}

// Manager is the Connection Manager for one modem.
type Manager struct {
	mu sync.Mutex

	log zerolog.Logger

	// Public aggregate state.
	attached       bool
	driverAttached bool
	roamingAllowed bool
	powered        bool
	suspended      bool
	status         common.RegStatus
	netregStatus   common.RegStatus
	bearer         common.Bearer
	lte            bool

	f flags

	usedPIDs map[uint8]bool
	usedCIDs map[uint8]bool
	cidMin   uint8
	cidMax   uint8

	contexts       []*pdpcontext.Context
	lastContextID  uint8
	contextDrivers []*contextdriver.Binding

	imsi     string
	basePath string
	store    Persistence
	prov     Provisioner
	netif    NetIf
	dial     dialect.Dialect
	metrics  MetricsSink

	pending bool // exclusive manager-level request outstanding

	suspendTimer *suspendTimer

	onPropertyChanged        func(name string, value interface{})
	onContextAdded           func(path string, props pdpcontext.Properties)
	onContextRemoved         func(path string)
	onContextPropertyChanged func(path, name string, value interface{})
}

// Options configures a new Manager.
type Options struct {
	IMSI     string
	BasePath string
	Store    Persistence
	Prov     Provisioner
	NetIf    NetIf
	Metrics  MetricsSink

	OnPropertyChanged        func(name string, value interface{})
	OnContextAdded           func(path string, props pdpcontext.Properties)
	OnContextRemoved         func(path string)
	OnContextPropertyChanged func(path, name string, value interface{})
}

// New constructs a Manager with default preferences (Powered=true,
// RoamingAllowed=false) before settings are loaded.
func New(opts Options) *Manager {
	m := &Manager{
		log:               logging.For("connmgr"),
		powered:           true,
		roamingAllowed:    false,
		usedPIDs:          make(map[uint8]bool),
		usedCIDs:          make(map[uint8]bool),
		imsi:              opts.IMSI,
		basePath:          opts.BasePath,
		store:             opts.Store,
		prov:              opts.Prov,
		netif:             opts.NetIf,
		metrics:           opts.Metrics,
		onPropertyChanged:        opts.OnPropertyChanged,
		onContextAdded:           opts.OnContextAdded,
		onContextRemoved:         opts.OnContextRemoved,
		onContextPropertyChanged: opts.OnContextPropertyChanged,
	}
	if m.onPropertyChanged == nil {
		m.onPropertyChanged = func(string, interface{}) {}
	}
	if m.onContextAdded == nil {
		m.onContextAdded = func(string, pdpcontext.Properties) {}
	}
	if m.onContextRemoved == nil {
		m.onContextRemoved = func(string) {}
	}
	if m.onContextPropertyChanged == nil {
		m.onContextPropertyChanged = func(string, string, interface{}) {}
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	return m
}

// noopMetrics is the default MetricsSink when none is configured.
type noopMetrics struct{}

func (noopMetrics) SetAttached(bool)              {}
func (noopMetrics) SetActiveContexts(int)         {}
func (noopMetrics) SetBearer(string)              {}
func (noopMetrics) RecordActivationFailure(string) {}

// AttachDialect binds the probed modem dialect and its advertised cid
// range; called once after dialect.Probe succeeds.
func (m *Manager) AttachDialect(d dialect.Dialect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dial = d
	m.cidMin, m.cidMax = d.CIDRange()
}

// RegisterContextDriver adds a context driver binding of the given type
// bound to a fixed network interface name. ANY-typed
// bindings require both activate_primary and deactivate_primary, which
// every Driver implementation provides. The interface name is known at
// registration time (e.g. the vendor plugin's rmnet/wwan device for
// this cid slot), not parsed out of activation responses.
func (m *Manager) RegisterContextDriver(typ common.ContextType, iface string, driver contextdriver.Driver) *contextdriver.Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := contextdriver.New(typ, driver)
	b.Interface = iface
	m.contextDrivers = append(m.contextDrivers, b)
	return b
}

// Load restores persisted preferences and contexts, provisioning fresh
// ones when none are found.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		powered, roaming, err := m.store.LoadManagerPrefs(m.imsi)
		if err == nil {
			m.powered, m.roamingAllowed = powered, roaming
		}
		records, err := m.store.LoadContexts(m.imsi)
		if err != nil {
			m.log.Warn().Err(err).Msg("failed loading persisted contexts")
		}
		for _, rec := range records {
			m.installRecordLocked(rec)
		}
	}

	if len(m.contexts) == 0 {
		m.provisionLocked("", "", "")
	}
	return nil
}

// contextPath derives a ConnectionContext object path from the
// manager's own bus path and a numeric id.
func (m *Manager) contextPath(id uint8) string {
	return contextPathFor(m.basePath, id)
}

func contextPathFor(base string, id uint8) string {
	return fmt.Sprintf("%s/context%d", base, id)
}

func (m *Manager) installRecordLocked(rec ContextRecord) {
	id := rec.ID
	if id == 0 || m.usedPIDs[id] {
		return
	}
	c := pdpcontext.New(id, rec.Type)
	c.Path = m.contextPath(id)
	c.Name = rec.Name
	c.APN = rec.AccessPointName
	c.Username = rec.Username
	c.Password = rec.Password
	c.Proto = rec.Protocol
	c.AuthMethod = rec.AuthenticationMethod
	c.MessageProxy = rec.MessageProxy
	c.MessageCenter = rec.MessageCenter
	m.usedPIDs[id] = true
	if id > m.lastContextID {
		m.lastContextID = id
	}
	m.contexts = append(m.contexts, c)
}

// provisionLocked installs provisioning-DB templates, or a single empty
// internet context if the lookup also yields nothing.
func (m *Manager) provisionLocked(mcc, mnc, spn string) {
	var records []ContextRecord
	if m.prov != nil {
		if r, err := m.prov.Lookup(mcc, mnc, spn); err == nil {
			records = r
		} else {
			m.log.Warn().Err(err).Msg("provisioning lookup failed")
		}
	}
	if len(records) == 0 {
		records = []ContextRecord{{Type: common.ContextTypeInternet}}
	}
	for _, rec := range records {
		id, ok := m.allocatePIDLocked()
		if !ok {
			m.log.Warn().Msg("cannot provision context: no path ids available")
			return
		}
		rec.ID = id
		m.installRecordLocked(rec)
		m.persistContextLocked(m.contexts[len(m.contexts)-1])
	}
}

func (m *Manager) allocatePIDLocked() (uint8, bool) {
	for id := 1; id < maxContexts; id++ {
		if !m.usedPIDs[uint8(id)] {
			return uint8(id), true
		}
	}
	return 0, false
}

func (m *Manager) allocateCIDLocked() (uint8, bool) {
	lo, hi := m.cidMin, m.cidMax
	if lo == 0 {
		lo = 1
	}
	if hi == 0 {
		hi = 255
	}
	for id := lo; id <= hi; id++ {
		if !m.usedCIDs[id] {
			return id, true
		}
		if id == 255 {
			break
		}
	}
	return 0, false
}

func (m *Manager) persistContextLocked(c *pdpcontext.Context) {
	if m.store == nil {
		return
	}
	rec := ContextRecord{
		ID:                   c.ID,
		Name:                 c.Name,
		Type:                 c.Type(),
		Protocol:             c.Proto,
		AccessPointName:      c.APN,
		Username:             c.Username,
		Password:             c.Password,
		AuthenticationMethod: c.AuthMethod,
		MessageProxy:         c.MessageProxy,
		MessageCenter:        c.MessageCenter,
	}
	if err := m.store.SaveContext(m.imsi, rec); err != nil {
		m.log.Warn().Err(err).Uint8("id", c.ID).Msg("failed persisting context")
	}
}

// findBindingLocked returns an available binding matching typ: exact
// type, or an ANY-typed binding.
func (m *Manager) findBindingLocked(typ common.ContextType) *contextdriver.Binding {
	for _, b := range m.contextDrivers {
		if b.Matches(typ) {
			return b
		}
	}
	return nil
}

func (m *Manager) contextByPathLocked(path string) *pdpcontext.Context {
	for _, c := range m.contexts {
		if c.Path == path {
			return c
		}
	}
	return nil
}

func (m *Manager) haveActiveContextsLocked() bool {
	for _, c := range m.contexts {
		if c.Active() {
			return true
		}
	}
	return false
}

func (m *Manager) haveDetachableActiveContextsLocked() bool {
	for _, c := range m.contexts {
		if c.Active() && c.Binding() != nil && c.Binding().HasDetachShutdown() {
			return true
		}
	}
	return false
}

func (m *Manager) haveReadSettingsLocked() bool {
	for _, b := range m.contextDrivers {
		if b.HasReadSettings() {
			return true
		}
	}
	return false
}

func (m *Manager) onLTELocked() bool {
	return m.lte && m.haveReadSettingsLocked()
}

// syncAttachedFromContextsLocked applies the LTE auto-attach bypass's
// definition of attached - "there exists an active context" - in place
// of the classic set_attached call. Outside the bypass it leaves
// m.attached untouched; the classic path in attach.go owns it there.
func (m *Manager) syncAttachedFromContextsLocked() (attached bool, changed bool) {
	if !m.onLTELocked() {
		return m.attached, false
	}
	now := m.haveActiveContextsLocked()
	changed = now != m.attached
	m.attached = now
	return now, changed
}

// beginPendingLocked claims the manager-level request slot, rejecting
// with busy if one is already outstanding. Call endPendingLocked to
// release it once the request settles.
func (m *Manager) beginPendingLocked() error {
	if m.pending {
		return common.NewError(common.ErrBusy, "manager request already pending")
	}
	m.pending = true
	return nil
}

func (m *Manager) endPendingLocked() {
	m.pending = false
}

// SetAccessTechnologyLTE is driven by the netreg collaborator whenever
// the current radio access technology changes.
func (m *Manager) SetAccessTechnologyLTE(lte bool) {
	m.mu.Lock()
	m.lte = lte
	m.mu.Unlock()
	m.netregUpdate(context.Background())
}

// reportActiveContextsLocked pushes the current active-context count to
// the metrics sink; call with m.mu held.
func (m *Manager) reportActiveContextsLocked() {
	n := 0
	for _, c := range m.contexts {
		if c.Active() {
			n++
		}
	}
	m.metrics.SetActiveContexts(n)
}

// reportActiveContexts is the unlocked convenience form used by callers
// that just released m.mu.
func (m *Manager) reportActiveContexts() {
	m.mu.Lock()
	m.reportActiveContextsLocked()
	m.mu.Unlock()
}

// sortedContexts returns contexts ordered by path id, for GetContexts.
func (m *Manager) sortedContexts() []*pdpcontext.Context {
	out := append([]*pdpcontext.Context(nil), m.contexts...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
