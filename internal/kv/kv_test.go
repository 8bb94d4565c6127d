package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBGetSetDelete(t *testing.T) {
	db := NewMemDB()

	v, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	v, err = db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, db.Delete([]byte("a")))
	v, err = db.Get([]byte("a"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestMemDBIteratePrefixOrdered(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Set([]byte("block:002"), []byte("b")))
	require.NoError(t, db.Set([]byte("block:001"), []byte("a")))
	require.NoError(t, db.Set([]byte("block:003"), []byte("c")))
	require.NoError(t, db.Set([]byte("qc:001"), []byte("x")))

	var keys []string
	err := db.IteratePrefix([]byte("block:"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"block:001", "block:002", "block:003"}, keys)
}

func TestMemDBBatchIsAtomicOnCommit(t *testing.T) {
	db := NewMemDB()
	b := db.NewBatch()
	b.Set([]byte("x"), []byte("1"))
	b.Set([]byte("y"), []byte("2"))

	v, err := db.Get([]byte("x"))
	require.NoError(t, err)
	require.Nil(t, v, "writes must not be visible before commit")

	require.NoError(t, b.Commit())
	v, err = db.Get([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}
