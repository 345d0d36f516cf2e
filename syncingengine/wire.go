package syncingengine

import "github.com/ethereum/go-ethereum/rlp"

// announcementWire is the on-the-wire framing for a re-announced block,
// RLP-encoded the same way the overlay package encodes its journal
// records — both sit on top of go-ethereum's storage/wire encoding
// rather than inventing a bespoke format.
type announcementWire struct {
	Hash   BlockHash
	Number uint64
	IsBest bool
	Data   []byte
}

func encodeAnnouncement(hash BlockHash, number uint64, isBest bool, data []byte) []byte {
	enc, err := rlp.EncodeToBytes(announcementWire{Hash: hash, Number: number, IsBest: isBest, Data: data})
	if err != nil {
		panic(err)
	}
	return enc
}

type handshakeWire struct {
	BestHash   BlockHash
	BestNumber uint64
}

func encodeHandshake(hash BlockHash, number uint64) []byte {
	enc, err := rlp.EncodeToBytes(handshakeWire{BestHash: hash, BestNumber: number})
	if err != nil {
		panic(err)
	}
	return enc
}
