// Package overlay implements the non-canonical overlay: an in-memory,
// journaled forest of per-block changesets sitting between the last
// canonicalized block and the current chain head.
package overlay

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// BlockHash identifies a block. We reuse go-ethereum's 32-byte Hash type
// rather than inventing a bespoke hashable/cloneable/comparable value type.
type BlockHash = ethcommon.Hash

// Key is an opaque, ordered byte key into the keyspace the overlay
// buffers changes for (trie keys, in practice).
type Key = string

// DBValue is an opaque value buffer.
type DBValue = []byte

// KV is a single ordered key/value pair, used for ChangeSet.Inserted
// where insertion order must be preserved (map iteration
// order in Go is undefined, so a slice is mandatory here, not a
// simplification).
type KV struct {
	Key   Key
	Value DBValue
}

// ChangeSet is an ordered set of insertions and deletions attributed to
// exactly one block.
type ChangeSet struct {
	Inserted []KV
	Deleted  []Key
}

// CommitSet is the payload returned by overlay mutators for the caller
// to atomically apply to durable storage: Data is the canonicalized
// key/value changeset, Meta is the journal bookkeeping the caller writes
// to the metadata store.
type CommitSet struct {
	Data ChangeSet
	Meta ChangeSet
}

// BlockOverlay is one block's entry within an OverlayLevel. Inserted
// holds only keys — the values live in the ref-counted values table so
// that two sibling overlays inserting the same key share storage.
type BlockOverlay struct {
	Hash        BlockHash
	JournalIndex uint64
	JournalKey   []byte
	Inserted     []Key
	Deleted      []Key
}

// OverlayLevel holds every BlockOverlay at one block height.
type OverlayLevel struct {
	Blocks      []*BlockOverlay
	UsedIndices uint64 // bitmap: bit k set iff some block at this level has JournalIndex k
	Span        uint64 // one past the largest journal index ever used at this level
}

// JournalRecord is the durable encoding of one BlockOverlay, keyed by
// journalKey(number, index) in the metadata store.
type JournalRecord struct {
	Hash       BlockHash
	ParentHash BlockHash
	Inserted   []KV
	Deleted    []Key
}

// canonical marker written under lastCanonicalMetaKey.
type lastCanonical struct {
	Hash   BlockHash
	Number uint64
}

// Errors returned at the input boundary of the mutating operations.
// Past the point inside Canonicalize where preconditions have already
// been checked, the remaining work is infallible — a violated invariant
// there is a programmer error, asserted with debugAssert, not one of
// these.
var (
	ErrInvalidBlockNumber = errors.New("overlay: invalid block number")
	ErrInvalidParent      = errors.New("overlay: invalid parent")
	ErrBlockAlreadyExists = errors.New("overlay: block already exists")
	ErrInvalidBlock       = errors.New("overlay: invalid block")
)

// DbError wraps a failure reading the metadata store during reconstruction.
type DbError struct {
	Err error
}

func (e *DbError) Error() string { return fmt.Sprintf("overlay: db error: %v", e.Err) }
func (e *DbError) Unwrap() error { return e.Err }
