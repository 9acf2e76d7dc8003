package contextdriver

import (
	"context"

	"github.com/ofono-connman/connmand/dialect"
)

// dialectDriver adapts a dialect.Dialect to the Driver interface: the
// same modem back-end serves every ContextDriverBinding, so Remove is a
// no-op rather than tearing down the shared dialect.
type dialectDriver struct {
	d dialect.Dialect
}

// FromDialect wraps d as a Driver, letting the one negotiated dialect
// back every registered binding.
func FromDialect(d dialect.Dialect) Driver {
	return &dialectDriver{d: d}
}

func (w *dialectDriver) ActivatePrimary(ctx context.Context, req dialect.ActivateRequest) (dialect.Settings, error) {
	return w.d.ActivatePrimary(ctx, req)
}

func (w *dialectDriver) DeactivatePrimary(ctx context.Context, cid uint8) error {
	return w.d.DeactivatePrimary(ctx, cid)
}

func (w *dialectDriver) ReadSettings(ctx context.Context, cid uint8) (dialect.Settings, error) {
	return w.d.ReadSettings(ctx, cid)
}

func (w *dialectDriver) DetachShutdown(ctx context.Context, cid uint8) error {
	return w.d.DetachShutdown(ctx, cid)
}

func (w *dialectDriver) HasReadSettings() bool   { return w.d.HasReadSettings() }
func (w *dialectDriver) HasDetachShutdown() bool { return w.d.HasDetachShutdown() }
func (w *dialectDriver) Remove()                 {}
