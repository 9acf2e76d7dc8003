package contextdriver

import (
	"context"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/dialect"
)

// FakeDriver is an in-memory Driver for pdpcontext/connmgr tests.
type FakeDriver struct {
	ActivateErr    error
	DeactivateErr  error
	ActivateResult dialect.Settings
	NoReadSettings bool
	NoDetach       bool
	Removed        bool

	ActivateCalls   []dialect.ActivateRequest
	DeactivateCalls []uint8
}

func (f *FakeDriver) ActivatePrimary(_ context.Context, req dialect.ActivateRequest) (dialect.Settings, error) {
	f.ActivateCalls = append(f.ActivateCalls, req)
	if f.ActivateErr != nil {
		return dialect.Settings{}, f.ActivateErr
	}
	if f.ActivateResult.IPv4 == nil && f.ActivateResult.IPv6 == nil {
		return dialect.Settings{IPv4: &dialect.IPv4Settings{Static: true, Address: "10.0.0.2", Netmask: "255.255.255.0"}}, nil
	}
	return f.ActivateResult, nil
}

func (f *FakeDriver) DeactivatePrimary(_ context.Context, cid uint8) error {
	f.DeactivateCalls = append(f.DeactivateCalls, cid)
	return f.DeactivateErr
}

func (f *FakeDriver) ReadSettings(_ context.Context, cid uint8) (dialect.Settings, error) {
	if f.NoReadSettings {
		return dialect.Settings{}, common.DriverError{Kind: common.ErrNotImplemented}
	}
	return f.ActivateResult, nil
}

func (f *FakeDriver) DetachShutdown(_ context.Context, cid uint8) error {
	if f.NoDetach {
		return common.DriverError{Kind: common.ErrNotImplemented}
	}
	f.DeactivateCalls = append(f.DeactivateCalls, cid)
	return nil
}

func (f *FakeDriver) HasReadSettings() bool   { return !f.NoReadSettings }
func (f *FakeDriver) HasDetachShutdown() bool { return !f.NoDetach }
func (f *FakeDriver) Remove()                 { f.Removed = true }
