// Package dbusapi exports the Connection Manager's two object types on
// the system bus: ConnectionManager at the modem's base path, and a
// ConnectionContext per Primary Context at "<base>/context<N>". It
// bridges the manager's property/context callback hooks to
// PropertyChanged/ContextAdded/ContextRemoved signals and translates
// common.Error kinds to bus error names, the way the daemon's remote
// object plumbing is deliberately left external to the core.
package dbusapi

import (
	"context"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/connmgr"
	"github.com/ofono-connman/connmand/contextdriver"
	"github.com/ofono-connman/connmand/logging"
	"github.com/ofono-connman/connmand/pdpcontext"
)

const (
	managerIface = "org.ofono.connman.ConnectionManager"
	contextIface = "org.ofono.connman.ConnectionContext"
	errPrefix    = "org.ofono.connman.Error."
)

// Exporter owns the bus connection and the set of currently-exported
// ConnectionContext objects. Construct it before the connmgr.Manager so
// its OnPropertyChanged/OnContextAdded/OnContextRemoved methods can be
// passed straight into connmgr.Options; call Bind once the Manager
// exists to export the ConnectionManager object itself and one
// ConnectionContext object per context already loaded.
type Exporter struct {
	mu       sync.Mutex
	conn     *dbus.Conn
	basePath dbus.ObjectPath
	mgr      *connmgr.Manager
	log      zerolog.Logger
	contexts map[dbus.ObjectPath]*contextObject
}

// New wraps conn, ready to export objects under basePath (the modem's
// own object path, e.g. "/ril_0").
func New(conn *dbus.Conn, basePath string) *Exporter {
	return &Exporter{
		conn:     conn,
		basePath: dbus.ObjectPath(basePath),
		log:      logging.For("dbusapi"),
		contexts: make(map[dbus.ObjectPath]*contextObject),
	}
}

// Bind exports the ConnectionManager object and a ConnectionContext
// object for every context the manager already holds (post-Load). Call
// once, after connmgr.New and Load.
func (e *Exporter) Bind(mgr *connmgr.Manager) error {
	e.mu.Lock()
	e.mgr = mgr
	e.mu.Unlock()

	mo := &managerObject{mgr: mgr}
	if err := e.conn.Export(mo, e.basePath, managerIface); err != nil {
		return err
	}

	e.mu.Lock()
	for _, ci := range mgr.GetContexts() {
		e.exportContextLocked(ci.Path)
	}
	e.mu.Unlock()
	return nil
}

// OnPropertyChanged satisfies connmgr.Options.OnPropertyChanged: emits
// ConnectionManager.PropertyChanged.
func (e *Exporter) OnPropertyChanged(name string, value interface{}) {
	e.emit(e.basePath, managerIface, "PropertyChanged", name, dbus.MakeVariant(value))
}

// OnContextAdded satisfies connmgr.Options.OnContextAdded: exports the
// new ConnectionContext object and emits ConnectionManager.ContextAdded.
func (e *Exporter) OnContextAdded(path string, props pdpcontext.Properties) {
	e.mu.Lock()
	e.exportContextLocked(path)
	e.mu.Unlock()

	e.emit(e.basePath, managerIface, "ContextAdded", dbus.ObjectPath(path), propsToDict(props))
}

// OnContextRemoved satisfies connmgr.Options.OnContextRemoved: unexports
// the ConnectionContext object and emits ConnectionManager.ContextRemoved.
func (e *Exporter) OnContextRemoved(path string) {
	e.mu.Lock()
	op := dbus.ObjectPath(path)
	delete(e.contexts, op)
	_ = e.conn.Export(nil, op, contextIface)
	e.mu.Unlock()

	e.emit(e.basePath, managerIface, "ContextRemoved", op)
}

// exportContextLocked exports (or re-exports) the ConnectionContext
// object at path; callers hold e.mu.
func (e *Exporter) exportContextLocked(path string) {
	op := dbus.ObjectPath(path)
	co := &contextObject{mgr: e.mgr, path: path}
	e.contexts[op] = co
	if err := e.conn.Export(co, op, contextIface); err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("failed exporting ConnectionContext")
	}
}

// OnContextPropertyChanged satisfies connmgr.Options.OnContextPropertyChanged:
// emits ConnectionContext.PropertyChanged on the context's own path.
func (e *Exporter) OnContextPropertyChanged(path, name string, value interface{}) {
	e.emit(dbus.ObjectPath(path), contextIface, "PropertyChanged", name, dbus.MakeVariant(value))
}

func (e *Exporter) emit(path dbus.ObjectPath, iface, member string, body ...interface{}) {
	if err := e.conn.Emit(path, iface+"."+member, body...); err != nil {
		e.log.Warn().Err(err).Str("path", string(path)).Str("member", member).Msg("failed emitting signal")
	}
}

// managerObject implements the ConnectionManager bus methods by
// delegating straight to connmgr.Manager.
type managerObject struct {
	mgr *connmgr.Manager
}

func (o *managerObject) GetProperties() (map[string]dbus.Variant, *dbus.Error) {
	p := o.mgr.GetProperties()
	dict := map[string]dbus.Variant{
		"Attached":       dbus.MakeVariant(p.Attached),
		"RoamingAllowed": dbus.MakeVariant(p.RoamingAllowed),
		"Powered":        dbus.MakeVariant(p.Powered),
	}
	if p.Attached {
		dict["Bearer"] = dbus.MakeVariant(p.Bearer)
		dict["Suspended"] = dbus.MakeVariant(p.Suspended)
	}
	return dict, nil
}

func (o *managerObject) SetProperty(name string, value dbus.Variant) *dbus.Error {
	if err := o.mgr.SetProperty(context.Background(), name, value.Value()); err != nil {
		return toDBusError(err)
	}
	return nil
}

func (o *managerObject) AddContext(typeStr string) (dbus.ObjectPath, *dbus.Error) {
	typ, ok := common.ParseContextType(typeStr)
	if !ok {
		return "", toDBusError(common.NewError(common.ErrInvalidFormat, "unknown context type %q", typeStr))
	}
	path, err := o.mgr.AddContext(typ.DefaultName(), typ)
	if err != nil {
		return "", toDBusError(err)
	}
	return dbus.ObjectPath(path), nil
}

func (o *managerObject) RemoveContext(path dbus.ObjectPath) *dbus.Error {
	if err := o.mgr.RemoveContext(context.Background(), string(path)); err != nil {
		return toDBusError(err)
	}
	return nil
}

func (o *managerObject) DeactivateAll() *dbus.Error {
	if err := o.mgr.DeactivateAll(context.Background()); err != nil {
		return toDBusError(err)
	}
	return nil
}

type pathProps struct {
	Path  dbus.ObjectPath
	Props map[string]dbus.Variant
}

func (o *managerObject) GetContexts() ([]pathProps, *dbus.Error) {
	infos := o.mgr.GetContexts()
	out := make([]pathProps, 0, len(infos))
	for _, ci := range infos {
		out = append(out, pathProps{Path: dbus.ObjectPath(ci.Path), Props: propsToDict(ci.Properties)})
	}
	return out, nil
}

func (o *managerObject) ResetContexts(mcc, mnc, spn string) *dbus.Error {
	if err := o.mgr.ResetContexts(context.Background(), mcc, mnc, spn); err != nil {
		return toDBusError(err)
	}
	return nil
}

// contextObject implements the ConnectionContext bus methods.
type contextObject struct {
	mgr  *connmgr.Manager
	path string
}

func (o *contextObject) GetProperties() (map[string]dbus.Variant, *dbus.Error) {
	c := o.mgr.GetContexts()
	for _, ci := range c {
		if ci.Path == o.path {
			return propsToDict(ci.Properties), nil
		}
	}
	return nil, toDBusError(common.NewError(common.ErrNotFound, "no such context"))
}

func (o *contextObject) SetProperty(name string, value dbus.Variant) *dbus.Error {
	if name == "Active" {
		v, ok := value.Value().(bool)
		if !ok {
			return toDBusError(common.NewError(common.ErrInvalidArgs, "Active expects bool"))
		}
		if err := o.mgr.SetContextActive(context.Background(), o.path, v); err != nil {
			return toDBusError(err)
		}
		return nil
	}
	return toDBusError(common.NewError(common.ErrInvalidArgs, "property %q is read-only or unknown", name))
}

// propsToDict renders pdpcontext.Properties into the bus dict shape
//, omitting Settings/IPv6
// entries entirely while inactive and MessageProxy/MessageCenter for
// non-MMS types.
func propsToDict(p pdpcontext.Properties) map[string]dbus.Variant {
	dict := map[string]dbus.Variant{
		"Name":                 dbus.MakeVariant(p.Name),
		"Active":               dbus.MakeVariant(p.Active),
		"Type":                 dbus.MakeVariant(p.Type),
		"Protocol":             dbus.MakeVariant(p.Protocol),
		"AccessPointName":      dbus.MakeVariant(p.AccessPointName),
		"Username":             dbus.MakeVariant(p.Username),
		"Password":             dbus.MakeVariant(p.Password),
		"AuthenticationMethod": dbus.MakeVariant(p.AuthenticationMethod),
	}
	if p.Type == common.ContextTypeMMS.String() {
		dict["MessageProxy"] = dbus.MakeVariant(p.MessageProxy)
		dict["MessageCenter"] = dbus.MakeVariant(p.MessageCenter)
	}
	if p.Settings != nil {
		dict["Settings"] = dbus.MakeVariant(ipv4Dict(p.Settings))
	}
	if p.IPv6Settings != nil {
		dict["IPv6.Settings"] = dbus.MakeVariant(ipv6Dict(p.IPv6Settings))
	}
	return dict
}

func ipv4Dict(s *contextdriver.IPv4Settings) map[string]dbus.Variant {
	dict := map[string]dbus.Variant{"Interface": dbus.MakeVariant(s.Interface)}
	if s.Proxy != "" {
		dict["Proxy"] = dbus.MakeVariant(s.Proxy)
		return dict
	}
	dict["Method"] = dbus.MakeVariant(s.Method)
	dict["Address"] = dbus.MakeVariant(s.Address)
	dict["Netmask"] = dbus.MakeVariant(s.Netmask)
	dict["Gateway"] = dbus.MakeVariant(s.Gateway)
	dict["DomainNameServers"] = dbus.MakeVariant(s.DNS)
	return dict
}

func ipv6Dict(s *contextdriver.IPv6Settings) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Interface":         dbus.MakeVariant(s.Interface),
		"Address":           dbus.MakeVariant(s.Address),
		"PrefixLength":      dbus.MakeVariant(s.PrefixLength),
		"Gateway":           dbus.MakeVariant(s.Gateway),
		"DomainNameServers": dbus.MakeVariant(s.DNS),
	}
}

// toDBusError collapses a common.Error into the matching bus error
// name.
func toDBusError(err error) *dbus.Error {
	kind := common.KindOf(err)
	if kind == "" {
		kind = common.ErrFailed
	}
	return dbus.NewError(errPrefix+kindToName(kind), []interface{}{err.Error()})
}

func kindToName(kind common.ErrorKind) string {
	switch kind {
	case common.ErrInvalidArgs:
		return "InvalidArguments"
	case common.ErrInvalidFormat:
		return "InvalidFormat"
	case common.ErrNotFound:
		return "NotFound"
	case common.ErrNotAttached:
		return "NotAttached"
	case common.ErrAttachInProcess:
		return "AttachInProgress"
	case common.ErrBusy:
		return "InProgress"
	case common.ErrInUse:
		return "InUse"
	case common.ErrNotAllowed:
		return "NotAllowed"
	case common.ErrNotImplemented:
		return "NotImplemented"
	default:
		return "Failed"
	}
}

