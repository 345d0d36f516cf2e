package syncingengine

// ChainSync is the inner block-download state machine the engine
// drives. It is an external collaborator; only the surface the engine
// itself calls is modeled here.
type ChainSync interface {
	Status() SyncStatus
	NumPeers() uint32
	NumActivePeers() uint32
	NumDownloadedBlocks() uint64
	NumSyncRequests() uint32
	PeerInfo(id PeerId) (PeerInfo, bool)

	// NewPeer registers a freshly admitted full peer. A *BadPeer error
	// means the peer should be rejected and reported instead of kept.
	NewPeer(id PeerId, bestHash BlockHash, bestNumber uint64) (*Request, error)
	PeerDisconnected(id PeerId)

	OnValidatedBlockAnnounce(isNewBest bool, id PeerId, announce Announce)
	OnBlocksProcessed(results []BlockImportResult) []SyncResult
	OnJustificationImport(hash BlockHash, number uint64, success bool)
	OnBlockFinalized(hash BlockHash, number uint64)

	RequestJustification(hash BlockHash, number uint64)
	ClearJustificationRequests()
	SetSyncForkRequest(peers []PeerId, hash BlockHash, number uint64)
	UpdateChainInfo(hash BlockHash, number uint64)
	SetWarpSyncTargetBlock(header []byte)

	SendBlockRequest(id PeerId, req *Request)

	// Poll lets the chain-sync emit any outbound requests synthesized
	// since the last call. The engine calls this synchronously once per
	// wakeup — there is no async runtime underneath a single-goroutine
	// actor.
	Poll() []SyncResult

	IsMajorSyncing() bool
}

// Chain is the minimal header-lookup collaborator announceBlock needs,
// kept separate from ChainSync because header storage is the client's
// concern, not the download state machine's.
type Chain interface {
	HeaderNumber(hash BlockHash) (number uint64, exists bool)
	GenesisHash() BlockHash
}
