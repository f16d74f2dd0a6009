package proposal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/l2"
)

// blobManifest is the block data published with a proposal
type blobManifest struct {
	Blocks []blobBlock `json:"blocks"`
}

type blobBlock struct {
	Number       uint64            `json:"number"`
	Timestamp    uint64            `json:"timestamp"`
	Transactions []bridge.HexBytes `json:"transactions"`
}

// EncodeBlob returns the zlib compressed manifest of the blocks
func EncodeBlob(blocks []*l2.SealedBlock) ([]byte, error) {
	manifest := blobManifest{Blocks: make([]blobBlock, len(blocks))}

	for i, block := range blocks {
		manifest.Blocks[i] = blobBlock{
			Number:       block.Number,
			Timestamp:    block.Timestamp,
			Transactions: block.Transactions,
		}
	}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(raw); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeBlob restores the blocks of an encoded blob. Block hashes and state roots are not part of the blob.
func DecodeBlob(data []byte) ([]*l2.SealedBlock, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid blob: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("invalid blob: %w", err)
	}

	var manifest blobManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("invalid blob manifest: %w", err)
	}

	blocks := make([]*l2.SealedBlock, len(manifest.Blocks))
	for i, b := range manifest.Blocks {
		blocks[i] = &l2.SealedBlock{
			Number:       b.Number,
			Timestamp:    b.Timestamp,
			Transactions: b.Transactions,
		}
	}

	return blocks, nil
}
