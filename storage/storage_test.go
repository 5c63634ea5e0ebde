package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both implementations must satisfy the same contract.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, _, ok, err := s.Get("absent")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_PutGetRoundtrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("r1", 3, []byte(`{"a":1}`)))

			version, data, ok, err := s.Get("r1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(3), version)
			assert.JSONEq(t, `{"a":1}`, string(data))
		})
	}
}

func TestStore_PutUpserts(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("r1", 1, []byte(`{"a":1}`)))
			require.NoError(t, s.Put("r1", 2, []byte(`{"a":2}`)))

			version, data, ok, err := s.Get("r1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(2), version)
			assert.JSONEq(t, `{"a":2}`, string(data))
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("r1", 1, []byte(`{}`)))
			require.NoError(t, s.Delete("r1"))

			_, _, ok, err := s.Get("r1")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Delete("r1"), "deleting absent name is a no-op")
		})
	}
}

func TestSQLite_OpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Put("r1", 7, []byte(`{"kept":true}`)))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	version, _, ok, err := second.Get("r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), version)
}
