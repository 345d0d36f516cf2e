package syncingengine

import "fmt"

// ReputationChange is reported to the network service against a peer.
type ReputationChange struct {
	Reason string
	Value  int32
	Fatal  bool
}

func (r ReputationChange) String() string {
	if r.Fatal {
		return fmt.Sprintf("%s (fatal)", r.Reason)
	}
	return fmt.Sprintf("%s (%d)", r.Reason, r.Value)
}

var (
	GenesisMismatch      = ReputationChange{Reason: "genesis mismatch", Fatal: true}
	BadBlockAnnouncement = ReputationChange{Reason: "bad block announcement", Value: -(1 << 12)}
	InactiveSubstream    = ReputationChange{Reason: "inactive substream", Value: -(1 << 10)}
	InvalidJustification = ReputationChange{Reason: "invalid justification", Fatal: true}
)

// BadPeer is returned by ChainSync operations that decide a peer
// deserves a reputation penalty and disconnection.
type BadPeer struct {
	Peer       PeerId
	Reputation ReputationChange
}

func (e *BadPeer) Error() string {
	return fmt.Sprintf("peer %s: %s", e.Peer.TerseString(), e.Reputation)
}
