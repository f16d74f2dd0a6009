package l2

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

// Header is the part of an L2 block header needed to build on top of it
type Header struct {
	Number    uint64
	Hash      ethgo.Hash
	StateRoot ethgo.Hash
	Timestamp uint64
	BaseFee   *big.Int
}

type headerJSON struct {
	Number    string     `json:"number"`
	Hash      ethgo.Hash `json:"hash"`
	StateRoot ethgo.Hash `json:"stateRoot"`
	Timestamp string     `json:"timestamp"`
	BaseFee   string     `json:"baseFeePerGas"`
}

func (h *Header) UnmarshalJSON(data []byte) error {
	var raw headerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	number, err := hex.DecodeUint64(raw.Number)
	if err != nil {
		return fmt.Errorf("invalid block number: %w", err)
	}

	timestamp, err := hex.DecodeUint64(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid block timestamp: %w", err)
	}

	baseFee := new(big.Int)

	if raw.BaseFee != "" {
		buf, err := hex.DecodeHex(raw.BaseFee)
		if err != nil {
			return fmt.Errorf("invalid base fee: %w", err)
		}

		baseFee.SetBytes(buf)
	}

	*h = Header{
		Number:    number,
		Hash:      raw.Hash,
		StateRoot: raw.StateRoot,
		Timestamp: timestamp,
		BaseFee:   baseFee,
	}

	return nil
}

// SealedBlock is an L2 block produced from a draft, immutable once sealed
type SealedBlock struct {
	Number       uint64            `json:"number"`
	Hash         ethgo.Hash        `json:"hash"`
	StateRoot    ethgo.Hash        `json:"stateRoot"`
	Timestamp    uint64            `json:"timestamp"`
	Transactions []bridge.HexBytes `json:"transactions"`
}

// Size returns the number of raw transaction bytes in the block
func (b *SealedBlock) Size() int {
	size := 0
	for _, tx := range b.Transactions {
		size += len(tx)
	}

	return size
}

// OutboundMessage is an L2 to L1 message emitted in a sealed block
type OutboundMessage struct {
	TxHash  ethgo.Hash
	Message []byte
	Slot    ethgo.Hash
}
