package syncingengine

import "sync"

// mockChainSync is a minimal, single-goroutine-safe ChainSync test
// double.
type mockChainSync struct {
	mu sync.Mutex

	peers       map[PeerId]PeerInfo
	numDownload uint64
	majorSync   bool

	newPeerErr map[PeerId]error
	pollResult []SyncResult

	validated []ValidationProcess
}

func newMockChainSync() *mockChainSync {
	return &mockChainSync{
		peers:      make(map[PeerId]PeerInfo),
		newPeerErr: make(map[PeerId]error),
	}
}

func (m *mockChainSync) Status() SyncStatus { return SyncStatus{State: SyncStateIdle} }
func (m *mockChainSync) NumPeers() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.peers))
}
func (m *mockChainSync) NumActivePeers() uint32      { return m.NumPeers() }
func (m *mockChainSync) NumDownloadedBlocks() uint64 { return m.numDownload }
func (m *mockChainSync) NumSyncRequests() uint32     { return 0 }

func (m *mockChainSync) PeerInfo(id PeerId) (PeerInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	return p, ok
}

func (m *mockChainSync) NewPeer(id PeerId, bestHash BlockHash, bestNumber uint64) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.newPeerErr[id]; ok {
		return nil, err
	}
	m.peers[id] = PeerInfo{BestHash: bestHash, BestNumber: bestNumber}
	return nil, nil
}

func (m *mockChainSync) PeerDisconnected(id PeerId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, id)
}

func (m *mockChainSync) OnValidatedBlockAnnounce(isNewBest bool, id PeerId, announce Announce) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validated = append(m.validated, ValidationProcess{IsNewBest: isNewBest, Peer: id, Announce: announce})
}

func (m *mockChainSync) OnBlocksProcessed(results []BlockImportResult) []SyncResult { return nil }
func (m *mockChainSync) OnJustificationImport(hash BlockHash, number uint64, success bool) {}
func (m *mockChainSync) OnBlockFinalized(hash BlockHash, number uint64)             {}
func (m *mockChainSync) RequestJustification(hash BlockHash, number uint64)         {}
func (m *mockChainSync) ClearJustificationRequests()                                {}
func (m *mockChainSync) SetSyncForkRequest(peers []PeerId, hash BlockHash, number uint64) {}
func (m *mockChainSync) UpdateChainInfo(hash BlockHash, number uint64)              {}
func (m *mockChainSync) SetWarpSyncTargetBlock(header []byte)                       {}
func (m *mockChainSync) SendBlockRequest(id PeerId, req *Request)                    {}

func (m *mockChainSync) Poll() []SyncResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.pollResult
	m.pollResult = nil
	return res
}

func (m *mockChainSync) IsMajorSyncing() bool { return m.majorSync }

type mockNetwork struct {
	mu          sync.Mutex
	disconnects []PeerId
	reports     []ReputationChange
}

func (n *mockNetwork) DisconnectPeer(id PeerId, protocolName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnects = append(n.disconnects, id)
}

func (n *mockNetwork) ReportPeer(id PeerId, change ReputationChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, change)
}

func (n *mockNetwork) SetNotificationHandshake(protocolName string, data []byte) {}

type mockChain struct {
	headers map[BlockHash]uint64
	genesis BlockHash
}

func (c *mockChain) HeaderNumber(hash BlockHash) (uint64, bool) {
	n, ok := c.headers[hash]
	return n, ok
}

func (c *mockChain) GenesisHash() BlockHash { return c.genesis }

type mockSink struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *mockSink) SendSyncNotification(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
	return nil
}

type mockDecoder struct{}

func (mockDecoder) Decode(payload []byte) (Announce, error) {
	var hash BlockHash
	copy(hash[:], payload)
	return Announce{Hash: hash}, nil
}

type mockValidator struct {
	mu       sync.Mutex
	requests []PeerId
}

func (v *mockValidator) Validate(peer PeerId, announce Announce, isBest bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requests = append(v.requests, peer)
}
