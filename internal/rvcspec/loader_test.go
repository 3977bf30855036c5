package rvcspec

import (
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpecYAML = `
dgns:
  - dgn: 130074
    name: DC_DIMMER_STATUS_3
    signals:
      - name: instance
        byte_offset: 0
        bit_length: 8
        kind: uint
      - name: load_status
        byte_offset: 2
        bit_length: 8
        kind: uint
enums: []
`

func writeSpec(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSpecYAML), 0o600))
	return path
}

func TestLoad_ValidSpec(t *testing.T) {
	reg, err := Load(writeSpec(t, t.TempDir()))
	require.NoError(t, err)
	def, ok := reg.LookupByDGN(130074)
	require.True(t, ok)
	assert.Equal(t, "DC_DIMMER_STATUS_3", def.Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	var sle *SpecLoadError
	require.ErrorAs(t, err, &sle)
	assert.Equal(t, "read_failed", sle.Kind)
}

func TestLoadCached_MissWritesThenHitReusesCache(t *testing.T) {
	dir := t.TempDir()
	specPath := writeSpec(t, dir)

	db, err := OpenCacheDB(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	reg1, err := LoadCached(specPath, db)
	require.NoError(t, err)
	_, ok := reg1.LookupByDGN(130074)
	require.True(t, ok)

	assertCacheBucketPopulated(t, db)

	reg2, err := LoadCached(specPath, db)
	require.NoError(t, err)
	_, ok = reg2.LookupByDGN(130074)
	require.True(t, ok)
}

func TestLoadCached_NilDBFallsBackToLoad(t *testing.T) {
	reg, err := LoadCached(writeSpec(t, t.TempDir()), nil)
	require.NoError(t, err)
	_, ok := reg.LookupByDGN(130074)
	require.True(t, ok)
}

func assertCacheBucketPopulated(t *testing.T, db *bolt.DB) {
	t.Helper()
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		require.NotNil(t, b)
		count := 0
		_ = b.ForEach(func(k, v []byte) error { count++; return nil })
		require.Equal(t, 1, count)
		return nil
	})
	require.NoError(t, err)
}
