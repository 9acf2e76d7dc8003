package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofono-connman/connmand/common"
	"github.com/ofono-connman/connmand/connmgr"
)

func TestManagerPrefsRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveManagerPrefs("001010000000001", false, true))
	powered, roaming, err := s.LoadManagerPrefs("001010000000001")
	require.NoError(t, err)
	assert.False(t, powered)
	assert.True(t, roaming)
}

func TestManagerPrefsDefaultPoweredWhenUnset(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	powered, roaming, err := s.LoadManagerPrefs("unseen-imsi")
	require.NoError(t, err)
	assert.True(t, powered)
	assert.False(t, roaming)
}

func TestContextRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	rec := connmgr.ContextRecord{
		ID:                   3,
		Name:                 "Corp",
		Type:                 common.ContextTypeInternet,
		Protocol:             common.ProtoIP,
		AccessPointName:      "corp.apn",
		Username:             "u",
		Password:             "p",
		AuthenticationMethod: common.AuthCHAP,
	}
	require.NoError(t, s.SaveContext("001010000000001", rec))

	out, err := s.LoadContexts("001010000000001")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, rec.Name, out[0].Name)
	assert.Equal(t, rec.AccessPointName, out[0].AccessPointName)
	assert.Equal(t, rec.Type, out[0].Type)
}

func TestRemoveContextDropsGroup(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	rec := connmgr.ContextRecord{ID: 1, Type: common.ContextTypeInternet}
	require.NoError(t, s.SaveContext("imsi", rec))
	require.NoError(t, s.RemoveContext("imsi", 1))

	out, err := s.LoadContexts("imsi")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadContextsDropsUnparseableGroup(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	rec := connmgr.ContextRecord{ID: 1, Type: common.ContextTypeInternet, AccessPointName: "good.apn"}
	require.NoError(t, s.SaveContext("imsi", rec))

	v, err := s.load("imsi")
	require.NoError(t, err)
	v.Set("context2.name", "Corrupt")
	v.Set("context2.type", "not-a-real-type")
	v.Set("context2.accesspointname", "corrupt.apn")
	require.NoError(t, s.sync(v, "imsi"))

	out, err := s.LoadContexts("imsi")
	require.NoError(t, err)
	require.Len(t, out, 1, "the group with an unparseable type must be dropped, not kept with zero-value fields")
	assert.Equal(t, "good.apn", out[0].AccessPointName)
}

func TestLegacyPrimaryContextGroupIsMigratedOnLoad(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	v, err := s.load("imsi")
	require.NoError(t, err)
	v.Set("primarycontext2.name", "Legacy")
	v.Set("primarycontext2.type", common.ContextTypeInternet.String())
	v.Set("primarycontext2.accesspointname", "legacy.apn")
	require.NoError(t, s.sync(v, "imsi"))

	out, err := s.LoadContexts("imsi")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint8(2), out[0].ID)
	assert.Equal(t, "legacy.apn", out[0].AccessPointName)
}
