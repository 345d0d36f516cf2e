package syncingengine

import (
	lru "github.com/hashicorp/golang-lru"
)

// NotificationSink is a non-blocking send-handle to a peer's
// announcement substream.
type NotificationSink interface {
	SendSyncNotification(data []byte) error
}

// Peer is one entry in the engine's peer table.
type Peer struct {
	Info  PeerInfo
	Known *lru.Cache // BlockHash -> struct{}, capacity Config.MaxKnownBlocks
	Sink  NotificationSink
}

func newPeer(info PeerInfo, sink NotificationSink, maxKnown int) *Peer {
	known, err := lru.New(maxKnown)
	if err != nil {
		// Only returns an error for a non-positive size, which is a
		// configuration bug, not a runtime condition.
		panic(err)
	}
	return &Peer{Info: info, Known: known, Sink: sink}
}

// knows reports whether hash has already been sent to (or received
// from) this peer.
func (p *Peer) knows(hash BlockHash) bool {
	return p.Known.Contains(hash)
}

func (p *Peer) markKnown(hash BlockHash) {
	p.Known.Add(hash, struct{}{})
}

// peerTable holds every peer-keyed set and counter the engine's
// admission/disconnection logic needs, kept together so it can
// maintain their cross-cutting invariants in one place.
type peerTable struct {
	peers                map[PeerId]*Peer
	importantPeers       map[PeerId]struct{}
	bootNodeIds          map[PeerId]struct{}
	noSlotPeers          map[PeerId]struct{}
	noSlotConnectedPeers map[PeerId]struct{}

	numInPeers              uint32
	maxInPeers              uint32
	defaultPeersSetNumFull  uint32
	defaultPeersSetNumLight uint32
}

func newPeerTable(cfg Config, bootNodes, important, noSlot []PeerId) *peerTable {
	t := &peerTable{
		peers:                   make(map[PeerId]*Peer),
		importantPeers:          make(map[PeerId]struct{}),
		bootNodeIds:             make(map[PeerId]struct{}),
		noSlotPeers:             make(map[PeerId]struct{}),
		noSlotConnectedPeers:    make(map[PeerId]struct{}),
		maxInPeers:              cfg.MaxInPeers,
		defaultPeersSetNumFull:  cfg.DefaultPeersSetNumFull,
		defaultPeersSetNumLight: cfg.DefaultPeersSetNumLight,
	}
	for _, id := range bootNodes {
		t.bootNodeIds[id] = struct{}{}
	}
	for _, id := range important {
		t.importantPeers[id] = struct{}{}
	}
	for _, id := range noSlot {
		t.noSlotPeers[id] = struct{}{}
	}
	return t
}

func (t *peerTable) isNoSlot(id PeerId) bool {
	_, ok := t.noSlotPeers[id]
	return ok
}

func (t *peerTable) isImportant(id PeerId) bool {
	_, ok := t.importantPeers[id]
	return ok
}

// countsTowardInSlot reports whether p occupies an inbound full slot:
// inbound, full-role, and not a no-slot peer.
func (t *peerTable) countsTowardInSlot(id PeerId, p *Peer) bool {
	return p.Info.Inbound && p.Info.Roles == RoleFull && !t.isNoSlot(id)
}

func (t *peerTable) insert(id PeerId, p *Peer) {
	t.peers[id] = p
	if t.isNoSlot(id) {
		t.noSlotConnectedPeers[id] = struct{}{}
	}
	if t.countsTowardInSlot(id, p) {
		t.numInPeers++
	}
}

// remove tears the peer down symmetrically, decrementing numInPeers
// only if it was counted on admission. Returns false if id was not
// present (a soft error, never a crash).
func (t *peerTable) remove(id PeerId) bool {
	p, ok := t.peers[id]
	if !ok {
		return false
	}
	if t.countsTowardInSlot(id, p) {
		t.numInPeers--
	}
	delete(t.peers, id)
	delete(t.noSlotConnectedPeers, id)
	return true
}
