package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("order:b"), []byte("2")))
	require.NoError(t, db.Put([]byte("order:a"), []byte("1")))
	require.NoError(t, db.Put([]byte("flag:x"), []byte("x")))

	batch := new(Batch)
	batch.Put([]byte("order:c"), []byte("3"))
	batch.Delete([]byte("order:b"))
	require.NoError(t, db.Write(batch))

	var keys []string
	require.NoError(t, db.Iterate([]byte("order:"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"order:a", "order:c"}, keys)

	require.NoError(t, db.Delete([]byte("order:a")))
	_, err = db.Get([]byte("order:a"))
	require.ErrorIs(t, err, ErrNotFound)

	value, err := db.Get([]byte("order:c"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), value)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestIterateStopsEarly(t *testing.T) {
	db := NewMemDB()
	for _, k := range []string{"p:1", "p:2", "p:3"} {
		require.NoError(t, db.Put([]byte(k), []byte(k)))
	}
	seen := 0
	require.NoError(t, db.Iterate([]byte("p:"), func(key, value []byte) bool {
		seen++
		return seen < 2
	}))
	require.Equal(t, 2, seen)
}
