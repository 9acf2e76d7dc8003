package connmgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/contextdriver"
	"github.com/ofono-connman/connmand/dialect"
)

// fakeDialect is a minimal dialect.Dialect stub driven directly by
// tests, standing in for a probed modem.
type fakeDialect struct {
	attachCalls  []bool
	setAttachErr error
}

func (f *fakeDialect) Vendor() dialect.Vendor         { return dialect.VendorGeneric }
func (f *fakeDialect) Probe(context.Context) error    { return nil }
func (f *fakeDialect) CIDRange() (uint8, uint8)       { return 1, 8 }
func (f *fakeDialect) SetAttached(ctx context.Context, attach bool) error {
	f.attachCalls = append(f.attachCalls, attach)
	return f.setAttachErr
}
func (f *fakeDialect) AttachedStatus(context.Context) (common.RegStatus, error) {
	return common.RegStatusRegistered, nil
}
func (f *fakeDialect) ListActiveContexts(context.Context) ([]uint8, error) { return nil, nil }
func (f *fakeDialect) ActivatePrimary(context.Context, dialect.ActivateRequest) (dialect.Settings, error) {
	return dialect.Settings{}, common.NewError(common.ErrNotImplemented, "unused in attach tests")
}
func (f *fakeDialect) DeactivatePrimary(context.Context, uint8) error { return nil }
func (f *fakeDialect) ReadSettings(context.Context, uint8) (dialect.Settings, error) {
	return dialect.Settings{}, common.NewError(common.ErrNotImplemented, "")
}
func (f *fakeDialect) DetachShutdown(context.Context, uint8) error { return nil }
func (f *fakeDialect) HasReadSettings() bool                       { return false }
func (f *fakeDialect) HasDetachShutdown() bool                     { return false }

func newTestManager(t *testing.T) (*Manager, *contextdriver.FakeDriver) {
	m := New(Options{IMSI: "001010000000001", BasePath: "/modem0"})
	driver := &contextdriver.FakeDriver{}
	m.RegisterContextDriver(common.ContextTypeInternet, "wwan0", driver)
	m.RegisterContextDriver(common.ContextTypeMMS, "wwan0", &contextdriver.FakeDriver{})
	require.NoError(t, m.Load())
	return m, driver
}

func TestLoadProvisionsDefaultInternetContextWhenEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	ctxs := m.GetContexts()
	require.Len(t, ctxs, 1)
	assert.Equal(t, "internet", ctxs[0].Properties.Type)
}

func TestAttachFollowsRegistrationStatus(t *testing.T) {
	m, _ := newTestManager(t)
	dial := &fakeDialect{}
	m.AttachDialect(dial)

	m.RegistrationStatusChanged(common.RegStatusRegistered, 0, 0, "")
	assert.True(t, m.GetProperties().Attached)
	require.Len(t, dial.attachCalls, 1)
	assert.True(t, dial.attachCalls[0])

	m.RegistrationStatusChanged(common.RegStatusNotRegistered, 0, 0, "")
	assert.False(t, m.GetProperties().Attached)
	require.Len(t, dial.attachCalls, 2)
	assert.False(t, dial.attachCalls[1])
}

func TestSetPoweredFalseDetaches(t *testing.T) {
	m, _ := newTestManager(t)
	dial := &fakeDialect{}
	m.AttachDialect(dial)
	m.RegistrationStatusChanged(common.RegStatusRegistered, 0, 0, "")
	require.True(t, m.GetProperties().Attached)

	require.NoError(t, m.SetProperty(context.Background(), "Powered", false))
	assert.False(t, m.GetProperties().Powered)
	assert.False(t, m.GetProperties().Attached)
	require.Len(t, dial.attachCalls, 2)
	assert.False(t, dial.attachCalls[1])
}

func TestActivateAndDeactivateContextLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	m.mu.Lock()
	m.attached = true
	m.contexts[0].APN = "internet"
	path := m.contexts[0].Path
	m.mu.Unlock()

	require.NoError(t, m.SetContextActive(context.Background(), path, true))
	ctxs := m.GetContexts()
	require.Len(t, ctxs, 1)
	assert.True(t, ctxs[0].Properties.Active)

	require.NoError(t, m.SetContextActive(context.Background(), path, false))
	ctxs = m.GetContexts()
	assert.False(t, ctxs[0].Properties.Active)
}

func TestActivateRejectedWhenNotAttached(t *testing.T) {
	m, _ := newTestManager(t)
	path := m.GetContexts()[0].Path

	err := m.SetContextActive(context.Background(), path, true)
	require.Error(t, err)
	assert.Equal(t, common.ErrNotAttached, common.KindOf(err))
}

func TestContextAutoActivatedCreatesStubWhenNoMatch(t *testing.T) {
	m, _ := newTestManager(t)
	m.mu.Lock()
	m.attached = true
	// Consume the provisioned stub so auto-activation must create fresh.
	m.contexts[0].APN = "corp.internal"
	m.mu.Unlock()

	m.ContextAutoActivated(3, "ims")

	ctxs := m.GetContexts()
	require.Len(t, ctxs, 2)
	var found bool
	for _, c := range ctxs {
		if c.Properties.AccessPointName == "ims" {
			found = true
			assert.True(t, c.Properties.Active)
		}
	}
	assert.True(t, found)
}

func TestContextAutoActivatedMatchesExistingAPNPrefix(t *testing.T) {
	m, _ := newTestManager(t)
	m.mu.Lock()
	m.attached = true
	m.contexts[0].APN = "ims.mnc001"
	m.mu.Unlock()

	m.ContextAutoActivated(3, "ims.mnc001.mcc001.gprs")

	ctxs := m.GetContexts()
	require.Len(t, ctxs, 1, "should reuse the existing context rather than create a new one")
	assert.True(t, ctxs[0].Properties.Active)
}

func TestContextAutoActivatedOnColdLTEModemSetsAttached(t *testing.T) {
	var changes []string
	m := New(Options{
		IMSI:     "001010000000001",
		BasePath: "/modem0",
		OnPropertyChanged: func(name string, value interface{}) {
			changes = append(changes, name)
		},
	})
	m.RegisterContextDriver(common.ContextTypeInternet, "wwan0", &contextdriver.FakeDriver{})
	require.NoError(t, m.Load())

	m.mu.Lock()
	m.lte = true // E-UTRAN reported, but no classic attach has happened yet
	m.mu.Unlock()
	require.False(t, m.GetProperties().Attached, "manager must start unattached")

	m.ContextAutoActivated(3, "internet")

	assert.True(t, m.GetProperties().Attached, "the auto-activation event itself must drive attached under the LTE bypass")
	assert.Contains(t, changes, "Attached")
}

func TestResetContextsReplacesNonActiveContexts(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.ResetContexts(context.Background(), "001", "01", ""))

	after := m.GetContexts()
	require.Len(t, after, 1)
}
