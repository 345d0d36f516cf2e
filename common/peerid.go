// Package common holds the PeerId type used by probesync/syncingengine.
// The overlay package does not import it; its BlockHash is go-ethereum's
// common.Hash.
package common

import (
	"encoding/hex"
	"fmt"
)

// PeerId is an opaque 32-byte peer identifier, matching the shape of
// libp2p/devp2p node identifiers (github.com/ethereum/go-ethereum/p2p/enode.ID)
// without pulling in the discovery/enr machinery this module has no use for.
type PeerId [32]byte

func (id PeerId) String() string {
	return hex.EncodeToString(id[:])
}

func (id PeerId) TerseString() string {
	return fmt.Sprintf("%x", id[:4])
}

// IsZero reports whether id is the zero value.
func (id PeerId) IsZero() bool {
	return id == PeerId{}
}
