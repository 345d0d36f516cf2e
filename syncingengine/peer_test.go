package syncingengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeerTableCountsInboundFullSlots(t *testing.T) {
	cfg := DefaultConfig()
	table := newPeerTable(cfg, nil, nil, []PeerId{peerID(9)})

	full := newPeer(PeerInfo{Roles: RoleFull, Inbound: true}, &mockSink{}, cfg.MaxKnownBlocks)
	table.insert(peerID(1), full)
	require.Equal(t, uint32(1), table.numInPeers)

	outbound := newPeer(PeerInfo{Roles: RoleFull, Inbound: false}, &mockSink{}, cfg.MaxKnownBlocks)
	table.insert(peerID(2), outbound)
	require.Equal(t, uint32(1), table.numInPeers)

	noSlot := newPeer(PeerInfo{Roles: RoleFull, Inbound: true}, &mockSink{}, cfg.MaxKnownBlocks)
	table.insert(peerID(9), noSlot)
	require.Equal(t, uint32(1), table.numInPeers)
	require.Contains(t, table.noSlotConnectedPeers, peerID(9))

	require.True(t, table.remove(peerID(1)))
	require.Equal(t, uint32(0), table.numInPeers)
	require.False(t, table.remove(peerID(1)))
}

func TestPeerKnownBlocksLRU(t *testing.T) {
	p := newPeer(PeerInfo{}, &mockSink{}, 1024)
	hash := blockHash(1)
	require.False(t, p.knows(hash))
	p.markKnown(hash)
	require.True(t, p.knows(hash))
}
