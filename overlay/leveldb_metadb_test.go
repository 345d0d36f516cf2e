package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// levelDbMetaDb backs MetaDb with an in-memory goleveldb instance,
// exercising the same storage engine go-probeum itself uses for its
// durable key-value stores (core/rawdb's freezer/leveldb backends),
// rather than only ever testing against the trivial map-backed double.
type levelDbMetaDb struct {
	db *leveldb.DB
}

func newLevelDbMetaDb(t *testing.T) *levelDbMetaDb {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &levelDbMetaDb{db: db}
}

func (m *levelDbMetaDb) GetMeta(key []byte) ([]byte, error) {
	v, err := m.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (m *levelDbMetaDb) apply(commit CommitSet) {
	batch := new(leveldb.Batch)
	for _, kv := range commit.Meta.Inserted {
		batch.Put([]byte(kv.Key), kv.Value)
	}
	for _, k := range commit.Meta.Deleted {
		batch.Delete([]byte(k))
	}
	m.db.Write(batch, nil)
}

// TestReconstructionRoundTripsThroughLevelDB repeats the essential
// reconstruction scenario against a real on-disk-format store instead
// of the bare in-memory map double.
func TestReconstructionRoundTripsThroughLevelDB(t *testing.T) {
	db := newLevelDbMetaDb(t)
	o, err := New(db)
	require.NoError(t, err)

	commit, err := o.Insert(h(1), h(0), 1, ChangeSet{Inserted: []KV{kv("a", "1")}})
	require.NoError(t, err)
	db.apply(commit)
	commit, err = o.Insert(h(2), h(1), 2, ChangeSet{Inserted: []KV{kv("b", "2")}})
	require.NoError(t, err)
	db.apply(commit)

	commit, _, err = o.Canonicalize(h(1))
	require.NoError(t, err)
	db.apply(commit)

	o2, err := New(db)
	require.NoError(t, err)
	require.Equal(t, o.LevelCount(), o2.LevelCount())

	hash, number, ok := o2.LastCanonicalized()
	require.True(t, ok)
	require.Equal(t, h(1), hash)
	require.Equal(t, uint64(1), number)

	v, ok, err := o2.Get(h(2), "b", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}
