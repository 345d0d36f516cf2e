package overlay

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// Tag prefixes: every metadata key starts with a short ASCII tag. Journal
// and span keys append an RLP-encoded payload to it, giving a
// deterministic, self-delimiting key; the last-canonical key is the bare tag.
var (
	journalTag  = []byte("nc-journal-")
	spanTag     = []byte("nc-span-")
	canonicalTag = []byte("nc-last-canonical")
)

type journalKeyPayload struct {
	Block uint64
	Index uint64
}

// journalKey deterministically encodes the (NON_CANONICAL_JOURNAL_TAG,
// block, index) triple used as the metadata-store key for one block
// overlay's journal entry.
func journalKey(block, index uint64) []byte {
	enc, err := rlp.EncodeToBytes(journalKeyPayload{Block: block, Index: index})
	if err != nil {
		panic(err) // encoding a plain uint64 pair cannot fail
	}
	return append(append([]byte{}, journalTag...), enc...)
}

// spanKey is the metadata key under which a level's span is persisted,
// once it exceeds OverlayLevelStoreSpansLongerThan. Keyed by the level's
// block number, since span is a per-level quantity.
func spanKey(block uint64) []byte {
	enc, err := rlp.EncodeToBytes(block)
	if err != nil {
		panic(err)
	}
	return append(append([]byte{}, spanTag...), enc...)
}

// lastCanonicalMetaKey is the fixed key under which (hash, number) of
// the last canonicalized block is stored.
func lastCanonicalMetaKey() []byte {
	return append([]byte{}, canonicalTag...)
}

func encodeJournalRecord(r JournalRecord) []byte {
	enc, err := rlp.EncodeToBytes(r)
	if err != nil {
		panic(err)
	}
	return enc
}

func decodeJournalRecord(data []byte) (JournalRecord, error) {
	var r JournalRecord
	err := rlp.DecodeBytes(data, &r)
	return r, err
}

func encodeLastCanonical(hash BlockHash, number uint64) []byte {
	enc, err := rlp.EncodeToBytes(lastCanonical{Hash: hash, Number: number})
	if err != nil {
		panic(err)
	}
	return enc
}

func decodeLastCanonical(data []byte) (lastCanonical, error) {
	var lc lastCanonical
	err := rlp.DecodeBytes(data, &lc)
	return lc, err
}

func encodeSpan(span uint64) []byte {
	enc, err := rlp.EncodeToBytes(span)
	if err != nil {
		panic(err)
	}
	return enc
}

func decodeSpan(data []byte) (uint64, error) {
	var span uint64
	err := rlp.DecodeBytes(data, &span)
	return span, err
}
