package overlay

import (
	"math/bits"

	"github.com/ethereum/go-ethereum/log"
)

// OverlayLevelStoreSpansLongerThan is the journal-index high-water mark
// past which a level's span is persisted to the metadata store.
const OverlayLevelStoreSpansLongerThan = 32

// debugAssertions gates invariant checks that are too expensive or too
// redundant to run in a release build: impossible branches are asserted
// during development and tolerated as a no-op otherwise, so a soft
// inconsistency never crashes the node.
var debugAssertions = false

func debugAssert(cond bool, msg string) {
	if debugAssertions && !cond {
		panic("overlay: invariant violated: " + msg)
	}
}

type valueEntry struct {
	Refcount uint32
	Value    DBValue
}

type pinnedInsertion struct {
	Keys     []Key
	Refcount uint32
}

// CanonicalReader is the backing store Get falls through to once the
// overlay's ancestor walk runs off the top of the tree.
type CanonicalReader interface {
	Get(key Key) (DBValue, error)
}

// NonCanonicalOverlay is the forest of per-block changesets between the
// canonical tip and the chain head.
// It is not safe for concurrent use; the caller (typically the storage
// layer that also owns the durable DB) must serialize access.
type NonCanonicalOverlay struct {
	db MetaDb

	lastCanonicalized *lastCanonical
	levels            []*OverlayLevel
	byHash            map[BlockHash]*BlockOverlay

	parents map[BlockHash]BlockHash
	values  map[Key]*valueEntry

	pinned           map[BlockHash]uint32
	pinnedInsertions map[BlockHash]*pinnedInsertion
	pinnedCanonicalized []BlockHash

	log log.Logger
}

// New reconstructs a NonCanonicalOverlay from the journal persisted in db.
func New(db MetaDb) (*NonCanonicalOverlay, error) {
	o := &NonCanonicalOverlay{
		db:               db,
		byHash:           make(map[BlockHash]*BlockOverlay),
		parents:          make(map[BlockHash]BlockHash),
		values:           make(map[Key]*valueEntry),
		pinned:           make(map[BlockHash]uint32),
		pinnedInsertions: make(map[BlockHash]*pinnedInsertion),
		log:              log.New("component", "non-canonical-overlay"),
	}

	raw, err := db.GetMeta(lastCanonicalMetaKey())
	if err != nil {
		return nil, &DbError{Err: err}
	}
	if raw == nil {
		return o, nil
	}
	lc, err := decodeLastCanonical(raw)
	if err != nil {
		return nil, &DbError{Err: err}
	}
	o.lastCanonicalized = &lc

	for number := lc.Number + 1; ; number++ {
		spanRaw, err := db.GetMeta(spanKey(number))
		if err != nil {
			return nil, &DbError{Err: err}
		}
		bound := uint64(OverlayLevelStoreSpansLongerThan)
		knownSpan := spanRaw != nil
		if knownSpan {
			span, err := decodeSpan(spanRaw)
			if err != nil {
				return nil, &DbError{Err: err}
			}
			bound = span
		}

		level := &OverlayLevel{}
		for i := uint64(0); i < bound; i++ {
			jraw, err := db.GetMeta(journalKey(number, i))
			if err != nil {
				return nil, &DbError{Err: err}
			}
			if jraw == nil {
				continue
			}
			rec, err := decodeJournalRecord(jraw)
			if err != nil {
				return nil, &DbError{Err: err}
			}
			bo := &BlockOverlay{
				Hash:         rec.Hash,
				JournalIndex: i,
				JournalKey:   journalKey(number, i),
				Deleted:      rec.Deleted,
			}
			for _, kv := range rec.Inserted {
				bo.Inserted = append(bo.Inserted, kv.Key)
				o.incrementValue(kv.Key, kv.Value)
			}
			o.parents[rec.Hash] = rec.ParentHash
			o.byHash[rec.Hash] = bo
			level.Blocks = append(level.Blocks, bo)
			level.UsedIndices |= 1 << uint(i)
			if i+1 > level.Span {
				level.Span = i + 1
			}
		}
		if knownSpan && bound > level.Span {
			level.Span = bound
		}
		if len(level.Blocks) == 0 {
			break
		}
		o.levels = append(o.levels, level)
	}
	o.log.Debug("Reconstructed non-canonical overlay", "levels", len(o.levels))
	return o, nil
}

func (o *NonCanonicalOverlay) frontBlockNumber() uint64 {
	if o.lastCanonicalized != nil {
		return o.lastCanonicalized.Number + 1
	}
	return 0
}

func (o *NonCanonicalOverlay) incrementValue(key Key, value DBValue) {
	entry, ok := o.values[key]
	if !ok {
		entry = &valueEntry{Value: value}
		o.values[key] = entry
	}
	entry.Refcount++
}

func (o *NonCanonicalOverlay) decrementValue(key Key) {
	entry, ok := o.values[key]
	if !ok {
		debugAssert(false, "decrementing refcount of untracked value")
		return
	}
	entry.Refcount--
	if entry.Refcount == 0 {
		delete(o.values, key)
	}
}

// Insert buffers a block's changeset against the overlay's current front.
func (o *NonCanonicalOverlay) Insert(hash, parentHash BlockHash, number uint64, changeset ChangeSet) (CommitSet, error) {
	var commit CommitSet

	if len(o.levels) == 0 && o.lastCanonicalized == nil && number > 0 {
		o.lastCanonicalized = &lastCanonical{Hash: parentHash, Number: number - 1}
		commit.Meta.Inserted = append(commit.Meta.Inserted, KV{
			Key:   string(lastCanonicalMetaKey()),
			Value: encodeLastCanonical(parentHash, number-1),
		})
	} else {
		front := o.frontBlockNumber()
		if number < front || number > front+uint64(len(o.levels)) {
			return CommitSet{}, ErrInvalidBlockNumber
		}
		if number == front {
			if o.lastCanonicalized == nil || o.lastCanonicalized.Hash != parentHash {
				return CommitSet{}, ErrInvalidParent
			}
		} else if _, ok := o.parents[parentHash]; !ok {
			return CommitSet{}, ErrInvalidParent
		}
	}

	front := o.frontBlockNumber()
	levelIdx := number - front
	if levelIdx == uint64(len(o.levels)) {
		o.levels = append(o.levels, &OverlayLevel{})
	}
	level := o.levels[levelIdx]

	if _, exists := o.byHash[hash]; exists {
		for _, b := range level.Blocks {
			if b.Hash == hash {
				return CommitSet{}, ErrBlockAlreadyExists
			}
		}
	}

	index := bits.TrailingZeros64(^level.UsedIndices)
	if index >= 64 {
		// 64 simultaneous insertions at one block height is an implementer
		// bug, not a recoverable condition.
		panic("overlay: level width exceeded 64 journal indices")
	}
	if uint64(index) >= OverlayLevelStoreSpansLongerThan && uint64(index) == level.Span {
		commit.Meta.Inserted = append(commit.Meta.Inserted, KV{
			Key:   string(spanKey(number)),
			Value: encodeSpan(uint64(index) + 1),
		})
	}
	if uint64(index)+1 > level.Span {
		level.Span = uint64(index) + 1
	}

	jKey := journalKey(number, uint64(index))
	rec := JournalRecord{Hash: hash, ParentHash: parentHash, Inserted: changeset.Inserted, Deleted: changeset.Deleted}
	commit.Meta.Inserted = append(commit.Meta.Inserted, KV{Key: string(jKey), Value: encodeJournalRecord(rec)})

	bo := &BlockOverlay{
		Hash:         hash,
		JournalIndex: uint64(index),
		JournalKey:   jKey,
		Deleted:      append([]Key{}, changeset.Deleted...),
	}
	for _, kv := range changeset.Inserted {
		bo.Inserted = append(bo.Inserted, kv.Key)
		o.incrementValue(kv.Key, kv.Value)
	}
	level.Blocks = append(level.Blocks, bo)
	level.UsedIndices |= 1 << uint(index)
	o.parents[hash] = parentHash
	o.byHash[hash] = bo

	return commit, nil
}

func (o *NonCanonicalOverlay) moveToPinnedInsertions(hash BlockHash, inserted []Key, refcount uint32) {
	o.pinnedInsertions[hash] = &pinnedInsertion{Keys: append([]Key{}, inserted...), Refcount: refcount}
}

// discardSubtree discards ov (already detached from its level by the
// caller) and everything under it still present in o.levels[levelIdx:],
// deferring to pinned_insertions whenever ov or a descendant is pinned.
// It returns whether ov was kept alive via pinned_insertions.
func (o *NonCanonicalOverlay) discardSubtree(levelIdx int, ov *BlockOverlay, commit *CommitSet) bool {
	childKeepAlive := 0
	if levelIdx < len(o.levels) {
		next := o.levels[levelIdx]
		kept := next.Blocks[:0]
		for _, child := range next.Blocks {
			if o.parents[child.Hash] != ov.Hash {
				kept = append(kept, child)
				continue
			}
			next.UsedIndices &^= 1 << uint(child.JournalIndex)
			delete(o.byHash, child.Hash)
			commit.Meta.Deleted = append(commit.Meta.Deleted, string(child.JournalKey))
			if o.discardSubtree(levelIdx+1, child, commit) {
				childKeepAlive++
			}
		}
		next.Blocks = kept
	}

	selfPinned := o.pinned[ov.Hash] > 0
	keepAlive := selfPinned || childKeepAlive > 0
	if keepAlive {
		refcount := uint32(childKeepAlive)
		if selfPinned {
			refcount++
		}
		o.moveToPinnedInsertions(ov.Hash, ov.Inserted, refcount)
	} else {
		delete(o.parents, ov.Hash)
		for _, k := range ov.Inserted {
			o.decrementValue(k)
		}
	}
	return keepAlive
}

// Canonicalize promotes hash, which must be in the front level, to the
// canonical chain, discarding its siblings' subtrees. No failure is
// permitted once the preconditions below have been checked.
func (o *NonCanonicalOverlay) Canonicalize(hash BlockHash) (CommitSet, uint64, error) {
	if len(o.levels) == 0 {
		return CommitSet{}, 0, ErrInvalidBlock
	}
	front := o.levels[0]
	var target *BlockOverlay
	for _, b := range front.Blocks {
		if b.Hash == hash {
			target = b
			break
		}
	}
	if target == nil {
		return CommitSet{}, 0, ErrInvalidBlock
	}

	number := o.frontBlockNumber()
	o.levels = o.levels[1:]

	var commit CommitSet

	o.pinned[hash]++
	o.pinnedCanonicalized = append(o.pinnedCanonicalized, hash)

	for _, ov := range front.Blocks {
		delete(o.byHash, ov.Hash)
		commit.Meta.Deleted = append(commit.Meta.Deleted, string(ov.JournalKey))
		if ov.Hash == hash {
			for _, k := range ov.Inserted {
				commit.Data.Inserted = append(commit.Data.Inserted, KV{Key: k, Value: o.values[k].Value})
			}
			commit.Data.Deleted = append(commit.Data.Deleted, ov.Deleted...)
			o.moveToPinnedInsertions(hash, ov.Inserted, 1)
			continue
		}
		o.discardSubtree(0, ov, &commit)
	}

	if front.Span > OverlayLevelStoreSpansLongerThan {
		commit.Meta.Deleted = append(commit.Meta.Deleted, string(spanKey(number)))
	}
	for len(o.levels) > 0 && len(o.levels[len(o.levels)-1].Blocks) == 0 {
		o.levels = o.levels[:len(o.levels)-1]
	}

	commit.Meta.Inserted = append(commit.Meta.Inserted, KV{
		Key:   string(lastCanonicalMetaKey()),
		Value: encodeLastCanonical(hash, number),
	})
	o.lastCanonicalized = &lastCanonical{Hash: hash, Number: number}

	o.log.Debug("Canonicalized block", "hash", hash, "number", number)
	return commit, number, nil
}

// Sync releases the canonicalization auto-pins recorded since the last
// call, once the caller has durably applied the corresponding CommitSets.
func (o *NonCanonicalOverlay) Sync() {
	pending := o.pinnedCanonicalized
	o.pinnedCanonicalized = nil
	for _, h := range pending {
		o.Unpin(h)
	}
}

// RevertOne discards the highest (most recent) level wholesale. It
// returns nil iff the overlay has no levels.
func (o *NonCanonicalOverlay) RevertOne() *CommitSet {
	if len(o.levels) == 0 {
		return nil
	}
	back := o.levels[len(o.levels)-1]
	o.levels = o.levels[:len(o.levels)-1]

	var commit CommitSet
	for _, b := range back.Blocks {
		commit.Meta.Deleted = append(commit.Meta.Deleted, string(b.JournalKey))
		delete(o.parents, b.Hash)
		delete(o.byHash, b.Hash)
		for _, k := range b.Inserted {
			o.decrementValue(k)
		}
	}
	if back.Span > OverlayLevelStoreSpansLongerThan {
		number := o.frontBlockNumber() + uint64(len(o.levels))
		commit.Meta.Deleted = append(commit.Meta.Deleted, string(spanKey(number)))
	}
	return &commit
}

// Remove discards a single block. It refuses (returning nil) if hash
// still has children recorded in parents, unless hash is in the last
// (highest) level.
func (o *NonCanonicalOverlay) Remove(hash BlockHash) *CommitSet {
	levelIdx := -1
	var target *BlockOverlay
	for i := len(o.levels) - 1; i >= 0 && levelIdx < 0; i-- {
		for _, b := range o.levels[i].Blocks {
			if b.Hash == hash {
				levelIdx = i
				target = b
				break
			}
		}
	}
	if levelIdx < 0 {
		return nil
	}
	if levelIdx != len(o.levels)-1 {
		for _, parent := range o.parents {
			if parent == hash {
				return nil
			}
		}
	}

	level := o.levels[levelIdx]
	kept := level.Blocks[:0]
	for _, b := range level.Blocks {
		if b.Hash != hash {
			kept = append(kept, b)
		}
	}
	level.Blocks = kept
	level.UsedIndices &^= 1 << uint(target.JournalIndex)
	delete(o.parents, hash)
	delete(o.byHash, hash)
	for _, k := range target.Inserted {
		o.decrementValue(k)
	}

	var commit CommitSet
	commit.Meta.Deleted = append(commit.Meta.Deleted, string(target.JournalKey))

	if len(level.Blocks) == 0 && levelIdx == len(o.levels)-1 {
		if level.Span > OverlayLevelStoreSpansLongerThan {
			number := o.frontBlockNumber() + uint64(levelIdx)
			commit.Meta.Deleted = append(commit.Meta.Deleted, string(spanKey(number)))
		}
		o.levels = o.levels[:levelIdx]
	}
	return &commit
}

// Pin records an external claim preventing hash's values from being
// discarded, even after its subtree is logically removed.
func (o *NonCanonicalOverlay) Pin(hash BlockHash) {
	o.pinned[hash]++
}

// Unpin releases one external claim on hash. When the last claim is
// released, any pinned_insertions kept alive solely by this pin are
// walked up the ancestor chain and released in turn.
func (o *NonCanonicalOverlay) Unpin(hash BlockHash) {
	count, ok := o.pinned[hash]
	if !ok {
		return
	}
	if count > 1 {
		o.pinned[hash] = count - 1
		return
	}
	delete(o.pinned, hash)

	current := hash
	for {
		pi, ok := o.pinnedInsertions[current]
		if !ok {
			return
		}
		pi.Refcount--
		if pi.Refcount > 0 {
			return
		}
		delete(o.pinnedInsertions, current)
		for _, k := range pi.Keys {
			o.decrementValue(k)
		}
		parent, hasParent := o.parents[current]
		delete(o.parents, current)
		if !hasParent {
			return
		}
		current = parent
	}
}

// Get resolves key as seen from anchor, walking up the overlay's
// ancestor chain before falling through to canonical. This is the
// supplemental read path layered on top of the journal above.
func (o *NonCanonicalOverlay) Get(anchor BlockHash, key Key, canonical CanonicalReader) (DBValue, bool, error) {
	current := anchor
	for {
		if bo, ok := o.byHash[current]; ok {
			for _, k := range bo.Deleted {
				if k == key {
					return nil, false, nil
				}
			}
			for _, k := range bo.Inserted {
				if k == key {
					return o.values[k].Value, true, nil
				}
			}
		} else if pi, ok := o.pinnedInsertions[current]; ok {
			for _, k := range pi.Keys {
				if k == key {
					return o.values[k].Value, true, nil
				}
			}
		}
		parent, ok := o.parents[current]
		if !ok {
			break
		}
		current = parent
	}
	if canonical == nil {
		return nil, false, nil
	}
	v, err := canonical.Get(key)
	if err != nil {
		return nil, false, err
	}
	return v, v != nil, nil
}

// LastCanonicalized returns the last canonicalized block, if any.
func (o *NonCanonicalOverlay) LastCanonicalized() (BlockHash, uint64, bool) {
	if o.lastCanonicalized == nil {
		return BlockHash{}, 0, false
	}
	return o.lastCanonicalized.Hash, o.lastCanonicalized.Number, true
}

// LevelCount reports the number of non-canonical levels currently held.
func (o *NonCanonicalOverlay) LevelCount() int { return len(o.levels) }
