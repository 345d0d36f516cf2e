package syncingengine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// debugAssertions mirrors the overlay package's own debug-build
// assertion idiom (see overlay/overlay.go): impossible branches are
// asserted during development and tolerated as a no-op in a release
// build, matching the "panic surface" design note that these stay
// debug-time invariants rather than runtime errors.
var debugAssertions = false

func debugAssert(cond bool, msg string) {
	if debugAssertions && !cond {
		panic("syncingengine: invariant violated: " + msg)
	}
}

const syncProtocolName = "/probesync/1"

type subscription struct {
	events chan SyncEvent
	done   chan struct{}
}

// Engine is the actor that owns the peer
// table, merges the tick/command/network-event/validation-result
// streams, and drives an inner ChainSync. Its Submit*/Push*/Set*
// methods may be called from any goroutine while Run is active: they
// only ever write to channels, and all reads and writes of engine state
// happen inside Run's own goroutine, so no lock is needed.
type Engine struct {
	cfg Config

	chainSync ChainSync
	network   Network
	chain     Chain
	decoder   AnnounceDecoder
	validator AnnounceValidator

	genesisHash BlockHash
	bestHash    BlockHash

	table         *peerTable
	announceCache *announceCache

	commands          chan Command
	networkEvents     chan NetworkEvent
	validationResults chan ValidationResult
	warpTargetCh      chan []byte

	subscribers []*subscription

	numConnected   atomic.Int64
	isMajorSyncing atomic.Bool

	syncingStarted      time.Time
	lastNotificationIO  time.Time

	tick *time.Ticker
	log  log.Logger
}

// NewEngine constructs an Engine. The returned value owns no
// goroutine until Run is called.
func NewEngine(
	cfg Config,
	genesisHash BlockHash,
	chainSync ChainSync,
	network Network,
	chain Chain,
	decoder AnnounceDecoder,
	validator AnnounceValidator,
	bootNodes, importantPeers, noSlotPeers []PeerId,
) *Engine {
	return &Engine{
		cfg:               cfg,
		chainSync:         chainSync,
		network:           network,
		chain:             chain,
		decoder:           decoder,
		validator:         validator,
		genesisHash:       genesisHash,
		table:             newPeerTable(cfg, bootNodes, importantPeers, noSlotPeers),
		announceCache:     newAnnounceCache(1),
		commands:          make(chan Command, cfg.CommandQueueCapacity),
		networkEvents:     make(chan NetworkEvent, 256),
		validationResults: make(chan ValidationResult, 256),
		warpTargetCh:      make(chan []byte, 1),
		tick:              time.NewTicker(cfg.TickInterval),
		log:               log.New("component", "syncing-engine"),
	}
}

// SubmitCommand enqueues a service command. It blocks if the bounded
// command queue is full, which is the deliberate backpressure point
// the caller must not outrun.
func (e *Engine) SubmitCommand(cmd Command) { e.commands <- cmd }

// PushNetworkEvent feeds one network-substrate event to the engine.
func (e *Engine) PushNetworkEvent(ev NetworkEvent) { e.networkEvents <- ev }

// PushValidationResult feeds one block-announce validation outcome.
func (e *Engine) PushValidationResult(r ValidationResult) { e.validationResults <- r }

// SetWarpSyncTarget fires the warp-sync target-block oneshot. Only the
// first call before it is consumed has any effect, matching "fires at
// most once".
func (e *Engine) SetWarpSyncTarget(header []byte) {
	select {
	case e.warpTargetCh <- header:
	default:
	}
}

// NumConnected is the relaxed-ordering observability cell from
// observability cell, read with relaxed ordering only.
func (e *Engine) NumConnected() int64 { return e.numConnected.Load() }

// IsMajorSyncing mirrors the inner chain-sync's major-syncing status.
func (e *Engine) IsMajorSyncing() bool { return e.isMajorSyncing.Load() }

// Run drives the engine's scheduler until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	now := time.Now()
	e.syncingStarted = now
	e.lastNotificationIO = now
	defer e.tick.Stop()

	for {
		if err := e.waitAndDispatchOne(ctx); err != nil {
			return err
		}
		// Drain everything else presently ready, in the fixed order
		// in a fixed order: tick, service commands, network events,
		// warp target, inner chain-sync progress, validation results.
		// Validation results are drained last so a block request they
		// synthesize is dispatched within the same wakeup.
		e.drainTick()
		e.drainCommands()
		e.drainNetworkEvents()
		e.drainWarpTarget()
		e.pollChainSync()
		e.drainValidationResults()

		e.numConnected.Store(int64(len(e.table.peers)))
		e.isMajorSyncing.Store(e.chainSync.IsMajorSyncing())
	}
}

// waitAndDispatchOne blocks until at least one input is ready and
// dispatches it, so the loop never busy-spins while idle.
func (e *Engine) waitAndDispatchOne(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.tick.C:
		e.onTick()
	case cmd := <-e.commands:
		e.handleCommand(cmd)
	case ev := <-e.networkEvents:
		e.handleNetworkEvent(ev)
	case header := <-e.warpTargetCh:
		e.chainSync.SetWarpSyncTargetBlock(header)
	case res := <-e.validationResults:
		e.handleValidationResult(res)
	}
	return nil
}

func (e *Engine) drainTick() {
	for {
		select {
		case <-e.tick.C:
			e.onTick()
		default:
			return
		}
	}
}

func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			e.handleCommand(cmd)
		default:
			return
		}
	}
}

func (e *Engine) drainNetworkEvents() {
	for {
		select {
		case ev := <-e.networkEvents:
			e.handleNetworkEvent(ev)
		default:
			return
		}
	}
}

func (e *Engine) drainWarpTarget() {
	select {
	case header := <-e.warpTargetCh:
		e.chainSync.SetWarpSyncTargetBlock(header)
	default:
	}
}

func (e *Engine) pollChainSync() {
	for _, res := range e.chainSync.Poll() {
		e.handleSyncResult(res)
	}
}

func (e *Engine) drainValidationResults() {
	for {
		select {
		case res := <-e.validationResults:
			e.handleValidationResult(res)
		default:
			return
		}
	}
}

// onTick implements the maintenance-tick algorithm. Metrics reporting is
// an external collaborator's concern and is
// not performed here.
func (e *Engine) onTick() {
	now := time.Now()
	if !e.syncingStarted.IsZero() {
		if now.Sub(e.syncingStarted) < e.cfg.InitialEvictionGrace {
			return
		}
		e.syncingStarted = time.Time{}
		e.lastNotificationIO = now
		return
	}
	if now.Sub(e.lastNotificationIO) > e.cfg.InactivityEvictThreshold {
		for id := range e.table.peers {
			e.network.ReportPeer(id, InactiveSubstream)
			e.disconnectPeer(id)
		}
		e.lastNotificationIO = now
	}
}

func (e *Engine) handleNetworkEvent(ev NetworkEvent) {
	switch ev := ev.(type) {
	case NotificationStreamOpened:
		e.onPeerConnected(ev)
	case NotificationStreamClosed:
		e.onPeerDisconnected(ev.Peer)
	case NotificationsReceived:
		e.onNotificationsReceived(ev)
	}
}

// onPeerConnected implements the peer admission policy.
func (e *Engine) onPeerConnected(ev NotificationStreamOpened) {
	id := ev.Peer
	if _, exists := e.table.peers[id]; exists {
		debugAssert(false, "NotificationStreamOpened for already-connected peer")
		return
	}
	if ev.GenesisHash != e.genesisHash {
		e.network.ReportPeer(id, GenesisMismatch)
		return
	}

	noSlot := e.table.isNoSlot(id)
	if ev.Roles == RoleFull && ev.Inbound && !noSlot && e.table.numInPeers == e.table.maxInPeers {
		return
	}
	if ev.Roles == RoleFull {
		extra := uint32(0)
		if noSlot {
			extra = 1
		}
		limit := e.table.defaultPeersSetNumFull + uint32(len(e.table.noSlotConnectedPeers)) + extra
		if e.chainSync.NumPeers() >= limit {
			return
		}
	}
	if ev.Roles == RoleLight {
		if uint32(len(e.table.peers))-e.chainSync.NumPeers() >= e.table.defaultPeersSetNumLight {
			return
		}
	}

	peer := newPeer(PeerInfo{
		Roles:      ev.Roles,
		BestHash:   ev.BestHash,
		BestNumber: ev.BestNumber,
		Inbound:    ev.Inbound,
	}, ev.Sink, e.cfg.MaxKnownBlocks)
	e.table.insert(id, peer)

	if ev.Roles == RoleFull {
		req, err := e.chainSync.NewPeer(id, ev.BestHash, ev.BestNumber)
		if err != nil {
			var bad *BadPeer
			if errors.As(err, &bad) {
				e.network.ReportPeer(id, bad.Reputation)
			}
			e.table.remove(id)
			return
		}
		if req != nil {
			e.chainSync.SendBlockRequest(id, req)
		}
	}

	e.announceCache.resize(e.announceCacheCapacity())
	e.publish(PeerConnectedEvent{Peer: id})
	e.log.Debug("Peer connected", "peer", id.TerseString(), "role", ev.Roles)
}

func (e *Engine) onPeerDisconnected(id PeerId) {
	if !e.table.remove(id) {
		e.log.Debug("Disconnect for unknown peer", "peer", id.TerseString())
		return
	}
	e.chainSync.PeerDisconnected(id)
	e.announceCache.resize(e.announceCacheCapacity())
	e.publish(PeerDisconnectedEvent{Peer: id})
	e.log.Debug("Peer disconnected", "peer", id.TerseString())
}

// disconnectPeer only signals the network substrate; the peer table is
// torn down symmetrically once the corresponding
// NotificationStreamClosed event arrives back through the engine.
func (e *Engine) disconnectPeer(id PeerId) {
	e.network.DisconnectPeer(id, syncProtocolName)
}

func (e *Engine) announceCacheCapacity() int {
	if n := len(e.table.peers); n > 0 {
		return n
	}
	return 1
}

func (e *Engine) onNotificationsReceived(ev NotificationsReceived) {
	peer, ok := e.table.peers[ev.Peer]
	if !ok {
		return
	}
	announce, err := e.decoder.Decode(ev.Payload)
	if err != nil {
		e.log.Debug("Malformed announcement", "peer", ev.Peer.TerseString(), "err", err)
		return
	}
	e.lastNotificationIO = time.Now()
	peer.markKnown(announce.Hash)

	if peer.Info.Roles != RoleFull {
		return
	}
	isBest := announce.State == nil || *announce.State == BlockStateBest
	e.validator.Validate(ev.Peer, announce, isBest)
}

func (e *Engine) handleValidationResult(res ValidationResult) {
	switch r := res.(type) {
	case ValidationSkip:
	case ValidationProcess:
		e.chainSync.OnValidatedBlockAnnounce(r.IsNewBest, r.Peer, r.Announce)
		if peer, ok := e.table.peers[r.Peer]; ok {
			if info, ok := e.chainSync.PeerInfo(r.Peer); ok {
				peer.Info.BestHash = info.BestHash
				peer.Info.BestNumber = info.BestNumber
			}
		}
		if len(r.Announce.Data) > 0 {
			e.announceCache.put(r.Announce.Hash, r.Announce.Data)
		}
	case ValidationFailure:
		e.network.ReportPeer(r.Peer, BadBlockAnnouncement)
		if r.Disconnect {
			e.disconnectPeer(r.Peer)
		}
	}
}

// announceBlock re-announces a block to every peer that doesn't know it yet.
func (e *Engine) announceBlock(hash BlockHash, data []byte) {
	number, exists := e.chain.HeaderNumber(hash)
	if !exists {
		e.log.Warn("Trying to announce unknown block", "hash", hash)
		return
	}
	if hash == e.chain.GenesisHash() {
		return
	}
	isBest := hash == e.bestHash
	if len(data) == 0 {
		if cached, ok := e.announceCache.get(hash); ok {
			data = cached
		}
	}
	payload := encodeAnnouncement(hash, number, isBest, data)

	for id, peer := range e.table.peers {
		if peer.knows(hash) {
			continue
		}
		if err := peer.Sink.SendSyncNotification(payload); err != nil {
			e.log.Debug("Failed to send announcement", "peer", id.TerseString(), "err", err)
			continue
		}
		peer.markKnown(hash)
	}
	e.lastNotificationIO = time.Now()
}

func (e *Engine) handleSyncResult(res SyncResult) {
	if res.Err != nil {
		var bad *BadPeer
		if errors.As(res.Err, &bad) {
			e.network.ReportPeer(bad.Peer, bad.Reputation)
			e.disconnectPeer(bad.Peer)
		}
		return
	}
	if res.Request != nil {
		e.chainSync.SendBlockRequest(res.Peer, res.Request)
	}
}

func (e *Engine) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case SetSyncForkRequestCmd:
		e.chainSync.SetSyncForkRequest(c.Peers, c.Hash, c.Number)
	case RequestJustificationCmd:
		e.chainSync.RequestJustification(c.Hash, c.Number)
	case ClearJustificationRequestsCmd:
		e.chainSync.ClearJustificationRequests()
	case BlocksProcessedCmd:
		for _, res := range e.chainSync.OnBlocksProcessed(c.Results) {
			e.handleSyncResult(res)
		}
	case JustificationImportedCmd:
		e.chainSync.OnJustificationImport(c.Hash, c.Number, c.Success)
		if !c.Success {
			e.network.ReportPeer(c.Peer, InvalidJustification)
			e.disconnectPeer(c.Peer)
		}
	case AnnounceBlockCmd:
		e.announceBlock(c.Hash, c.Data)
	case NewBestBlockImportedCmd:
		e.bestHash = c.Hash
		e.chainSync.UpdateChainInfo(c.Hash, c.Number)
		e.network.SetNotificationHandshake(syncProtocolName, encodeHandshake(c.Hash, c.Number))
	case BlockFinalizedCmd:
		e.chainSync.OnBlockFinalized(c.Hash, c.Number)
	case StatusCmd:
		trySend(c.Reply, e.chainSync.Status())
	case NumActivePeersCmd:
		trySend(c.Reply, e.chainSync.NumActivePeers())
	case NumDownloadedBlocksCmd:
		trySend(c.Reply, e.chainSync.NumDownloadedBlocks())
	case NumSyncRequestsCmd:
		trySend(c.Reply, e.chainSync.NumSyncRequests())
	case PeersInfoCmd:
		infos := make([]PeerInfoSnapshot, 0, len(e.table.peers))
		for id, p := range e.table.peers {
			infos = append(infos, PeerInfoSnapshot{Id: id, Peer: p.Info})
		}
		trySend(c.Reply, infos)
	case BestSeenBlockCmd:
		status := e.chainSync.Status()
		var reply BestSeenBlockReply
		if status.BestSeenBlock != nil {
			reply.Number = *status.BestSeenBlock
			reply.Known = true
		}
		trySend(c.Reply, reply)
	case SyncStateCmd:
		trySend(c.Reply, e.chainSync.Status().State)
	case SubscribeCmd:
		trySend(c.Reply, e.subscribe(c.Buffer))
	}
}

// trySend delivers a one-shot reply without blocking: a dropped
// receiver is not an error.
func trySend[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func (e *Engine) subscribe(buffer int) Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{events: make(chan SyncEvent, buffer), done: make(chan struct{})}
	e.subscribers = append(e.subscribers, sub)
	var closeOnce int32
	cancel := func() {
		if atomic.CompareAndSwapInt32(&closeOnce, 0, 1) {
			close(sub.done)
		}
	}
	return Subscription{Events: sub.events, Cancel: cancel}
}

// publish fans ev out to every live subscriber, pruning any whose
// Cancel has been called. Only ever called from within Run's
// goroutine, so no lock is needed.
func (e *Engine) publish(ev SyncEvent) {
	kept := e.subscribers[:0]
	for _, sub := range e.subscribers {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.events <- ev:
		default:
		}
		kept = append(kept, sub)
	}
	e.subscribers = kept
}
