package overlay

// MetaDb is the read side of the metadata key-value store the overlay
// consumes. Writes are never issued directly by the overlay — they are
// produced as CommitSet.Meta and applied atomically by the caller
// alongside CommitSet.Data.
type MetaDb interface {
	GetMeta(key []byte) ([]byte, error)
}
