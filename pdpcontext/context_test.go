package pdpcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/contextdriver"
)

func TestActivationLifecycle(t *testing.T) {
	c := New(1, common.ContextTypeInternet)
	c.APN = "internet"

	driver := &contextdriver.FakeDriver{}
	binding := contextdriver.New(common.ContextTypeInternet, driver)

	require.NoError(t, c.BeginActivation(3, binding))
	assert.Equal(t, StateActivating, c.State())
	assert.True(t, binding.Inuse)

	_, err := c.Activate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateActive, c.State())
	assert.False(t, c.Pending())

	require.NoError(t, c.BeginDeactivation())
	require.NoError(t, c.Deactivate(context.Background()))
	assert.Equal(t, StateInactive, c.State())
	assert.False(t, binding.Inuse)
}

func TestActivationFailureReleasesBindingAndCID(t *testing.T) {
	c := New(1, common.ContextTypeInternet)
	c.APN = "internet"
	driver := &contextdriver.FakeDriver{ActivateErr: common.DriverError{Kind: common.ErrFailed}}
	binding := contextdriver.New(common.ContextTypeInternet, driver)

	require.NoError(t, c.BeginActivation(3, binding))
	_, err := c.Activate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateInactive, c.State())
	assert.False(t, binding.Inuse)
	assert.Zero(t, c.CID)
}

func TestMMSProxyOverridesSettings(t *testing.T) {
	c := New(2, common.ContextTypeMMS)
	c.MessageProxy = "http://mmsc.op.com:8080/x"

	driver := &contextdriver.FakeDriver{}
	binding := contextdriver.New(common.ContextTypeMMS, driver)
	require.NoError(t, c.BeginActivation(4, binding))

	settings, err := c.Activate(context.Background())
	require.NoError(t, err)
	require.NotNil(t, settings.IPv4)
	assert.Equal(t, "http://mmsc.op.com:8080/x", settings.IPv4.Proxy)
	assert.Empty(t, settings.IPv4.Method)
	assert.Empty(t, settings.IPv4.Address)
	assert.Equal(t, "mmsc.op.com", c.ProxyHost)
	assert.EqualValues(t, 8080, c.ProxyPort)
}

func TestDoubleActivationRejectedBusy(t *testing.T) {
	c := New(1, common.ContextTypeInternet)
	driver := &contextdriver.FakeDriver{}
	binding := contextdriver.New(common.ContextTypeInternet, driver)
	require.NoError(t, c.BeginActivation(1, binding))
	err := c.BeginActivation(2, binding)
	require.Error(t, err)
	assert.Equal(t, common.ErrBusy, common.KindOf(err))
}

func TestCanMutateRejectsWhileActive(t *testing.T) {
	c := New(1, common.ContextTypeInternet)
	driver := &contextdriver.FakeDriver{}
	binding := contextdriver.New(common.ContextTypeInternet, driver)
	require.NoError(t, c.BeginActivation(1, binding))
	_, err := c.Activate(context.Background())
	require.NoError(t, err)
	require.Error(t, c.CanMutate())
}
