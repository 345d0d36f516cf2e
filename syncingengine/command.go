package syncingengine

// Command is the externally-submitted service-command envelope,
// dispatched through a typed-struct-over-channel pattern rather than a
// bare function closure.
type Command interface {
	isCommand()
}

type SetSyncForkRequestCmd struct {
	Peers  []PeerId
	Hash   BlockHash
	Number uint64
}

type RequestJustificationCmd struct {
	Hash   BlockHash
	Number uint64
}

type ClearJustificationRequestsCmd struct{}

type BlocksProcessedCmd struct {
	Results []BlockImportResult
}

type JustificationImportedCmd struct {
	Peer    PeerId
	Hash    BlockHash
	Number  uint64
	Success bool
}

type AnnounceBlockCmd struct {
	Hash BlockHash
	Data []byte
}

type NewBestBlockImportedCmd struct {
	Hash   BlockHash
	Number uint64
}

type BlockFinalizedCmd struct {
	Hash   BlockHash
	Number uint64
}

// Inspection queries reply via one-shot channels.
// A dropped receiver is not an error: the engine delivers every reply
// with a non-blocking send (trySend in engine.go).

type StatusCmd struct {
	Reply chan<- SyncStatus
}

type NumActivePeersCmd struct {
	Reply chan<- uint32
}

type NumDownloadedBlocksCmd struct {
	Reply chan<- uint64
}

type NumSyncRequestsCmd struct {
	Reply chan<- uint32
}

type PeersInfoCmd struct {
	Reply chan<- []PeerInfoSnapshot
}

type BestSeenBlockReply struct {
	Hash   BlockHash
	Number uint64
	Known  bool
}

type BestSeenBlockCmd struct {
	Reply chan<- BestSeenBlockReply
}

type SyncStateCmd struct {
	Reply chan<- SyncState
}

// Subscription is handed back from a SubscribeCmd: Events carries
// PeerConnectedEvent/PeerDisconnectedEvent notifications; Cancel may be
// called from any goroutine to unregister, without touching engine
// state directly (see engine.go's lock-free publish/prune).
type Subscription struct {
	Events <-chan SyncEvent
	Cancel func()
}

type SubscribeCmd struct {
	Buffer int
	Reply  chan<- Subscription
}

func (SetSyncForkRequestCmd) isCommand()         {}
func (RequestJustificationCmd) isCommand()       {}
func (ClearJustificationRequestsCmd) isCommand() {}
func (BlocksProcessedCmd) isCommand()            {}
func (JustificationImportedCmd) isCommand()      {}
func (AnnounceBlockCmd) isCommand()              {}
func (NewBestBlockImportedCmd) isCommand()       {}
func (BlockFinalizedCmd) isCommand()             {}
func (StatusCmd) isCommand()                     {}
func (NumActivePeersCmd) isCommand()             {}
func (NumDownloadedBlocksCmd) isCommand()        {}
func (NumSyncRequestsCmd) isCommand()            {}
func (PeersInfoCmd) isCommand()                  {}
func (BestSeenBlockCmd) isCommand()              {}
func (SyncStateCmd) isCommand()                  {}
func (SubscribeCmd) isCommand()                  {}

// SyncEvent is published to subscribers on peer table changes.
type SyncEvent interface {
	isSyncEvent()
}

type PeerConnectedEvent struct{ Peer PeerId }
type PeerDisconnectedEvent struct{ Peer PeerId }

func (PeerConnectedEvent) isSyncEvent()    {}
func (PeerDisconnectedEvent) isSyncEvent() {}
