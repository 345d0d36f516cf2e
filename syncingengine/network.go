package syncingengine

// Network is the fire-and-forget notification substrate the engine
// drives peers through.
type Network interface {
	DisconnectPeer(id PeerId, protocolName string)
	ReportPeer(id PeerId, change ReputationChange)
	SetNotificationHandshake(protocolName string, data []byte)
}

// NetworkEvent is one of NotificationStreamOpened, NotificationStreamClosed
// or NotificationsReceived.
type NetworkEvent interface {
	isNetworkEvent()
}

type NotificationStreamOpened struct {
	Peer        PeerId
	Roles       Role
	GenesisHash BlockHash
	BestHash    BlockHash
	BestNumber  uint64
	Sink        NotificationSink
	Inbound     bool
}

type NotificationStreamClosed struct {
	Peer PeerId
}

type NotificationsReceived struct {
	Peer    PeerId
	Payload []byte
}

func (NotificationStreamOpened) isNetworkEvent() {}
func (NotificationStreamClosed) isNetworkEvent() {}
func (NotificationsReceived) isNetworkEvent()    {}

// ValidationResult is one of ValidationSkip, ValidationProcess or
// ValidationFailure — the outcome of running an announcement through
// the external block-announce validator.
type ValidationResult interface {
	isValidationResult()
}

type ValidationSkip struct{}

type ValidationProcess struct {
	IsNewBest bool
	Peer      PeerId
	Announce  Announce
}

type ValidationFailure struct {
	Peer       PeerId
	Disconnect bool
}

func (ValidationSkip) isValidationResult()    {}
func (ValidationProcess) isValidationResult() {}
func (ValidationFailure) isValidationResult() {}

// AnnounceDecoder decodes a raw NotificationsReceived payload into an
// Announce, external to the engine (the block-announce
// validator owns both decoding and validation).
type AnnounceDecoder interface {
	Decode(payload []byte) (Announce, error)
}

// AnnounceValidator submits a decoded announcement for asynchronous
// validation; its outcome arrives later on the engine's validation
// results channel.
type AnnounceValidator interface {
	Validate(peer PeerId, announce Announce, isBest bool)
}
