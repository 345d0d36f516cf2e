package syncingengine

import (
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/probeum/probesync/common"
)

// PeerId identifies a remote peer.
type PeerId = common.PeerId

// BlockHash identifies a block.
type BlockHash = ethcommon.Hash

// Role distinguishes full nodes (which download and validate blocks)
// from light clients.
type Role int

const (
	RoleFull Role = iota
	RoleLight
)

func (r Role) String() string {
	if r == RoleLight {
		return "light"
	}
	return "full"
}

// BlockState records whether an announced block is claimed to be the
// announcing peer's new best block.
type BlockState int

const (
	BlockStateBest BlockState = iota
	BlockStateNormal
)

// Announce is a decoded block announcement, payload-agnostic beyond the
// header/data split the engine itself must act on.
type Announce struct {
	Hash   BlockHash
	Header []byte
	Data   []byte
	State  *BlockState // nil means "assume Best"
}

// PeerInfo is the subset of a peer's handshake state the engine tracks
// directly (as opposed to what only the inner ChainSync needs).
type PeerInfo struct {
	Roles      Role
	BestHash   BlockHash
	BestNumber uint64
	Inbound    bool
}

// Request is an opaque block-download request constructed and consumed
// entirely by the ChainSync/Network collaborators; the engine only
// ferries it between them.
type Request struct {
	Peer    PeerId
	Payload []byte
}

// BlockImportResult is one outcome fed back to the engine via a
// BlocksProcessed command.
type BlockImportResult struct {
	Hash    BlockHash
	Number  uint64
	Success bool
}

// SyncResult pairs a peer with either a follow-up Request or an error
// (typically *BadPeer).
type SyncResult struct {
	Peer    PeerId
	Request *Request
	Err     error
}

// SyncStatus, SyncState and PeerInfoSnapshot snapshot the inner ChainSync for
// inspection commands.
type SyncStatus struct {
	State          SyncState
	BestSeenBlock  *uint64
	NumPeers       uint32
	QueuedBlocks   uint32
}

type SyncState int

const (
	SyncStateIdle SyncState = iota
	SyncStateDownloading
	SyncStateImporting
)

type PeerInfoSnapshot struct {
	Peer PeerInfo
	Id   PeerId
}
