package provision

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofono-connman/connmand/common"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "provision.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSeedFromYAMLAndLookupBySPN(t *testing.T) {
	db := openTestDB(t)
	n, err := db.SeedFromYAML("testdata/templates.yaml")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := db.Lookup("234", "15", "Vodafone")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "internet", recs[0].AccessPointName)
	assert.Equal(t, common.ProtoIPv4v6, recs[0].Protocol)
}

func TestLookupFallsBackToCarrierWideTemplate(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SeedFromYAML("testdata/templates.yaml")
	require.NoError(t, err)

	recs, err := db.Lookup("310", "260", "SomeUnknownSPN")
	require.NoError(t, err)
	require.Len(t, recs, 2, "falls back to the carrier-wide (spn='') templates")
}

func TestLookupUnknownCarrierReturnsEmpty(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SeedFromYAML("testdata/templates.yaml")
	require.NoError(t, err)

	recs, err := db.Lookup("999", "99", "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSeedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SeedFromYAML("testdata/templates.yaml")
	require.NoError(t, err)
	n2, err := db.SeedFromYAML("testdata/templates.yaml")
	require.NoError(t, err)
	assert.Equal(t, 3, n2)

	recs, err := db.Lookup("310", "260", "")
	require.NoError(t, err)
	assert.Len(t, recs, 2, "re-seeding must not duplicate rows")
}
