package l2

import (
	"errors"

	"github.com/umbracle/ethgo"
)

var (
	// ErrSlotNotAnchored is returned when a bridge message is processed before its slot is anchored
	ErrSlotNotAnchored = errors.New("signal slot is not anchored in the draft block")

	errAnchorExists = errors.New("draft block already has an anchor transaction")
)

// DraftBlock is the in-progress L2 block of one construction cycle
type DraftBlock struct {
	Parent       *Header
	Transactions []*ethgo.Transaction

	// slots recorded by the anchor transaction of this draft
	anchored  map[ethgo.Hash]struct{}
	hasAnchor bool
	nextNonce uint64
}

// NewDraftBlock starts a draft on top of parent
func NewDraftBlock(parent *Header) *DraftBlock {
	return &DraftBlock{
		Parent:   parent,
		anchored: map[ethgo.Hash]struct{}{},
	}
}

// AddAnchor appends the anchor transaction that records slots. It must be the first transaction.
func (d *DraftBlock) AddAnchor(tx *ethgo.Transaction, slots []ethgo.Hash) error {
	if d.hasAnchor || len(d.Transactions) > 0 {
		return errAnchorExists
	}

	d.Transactions = append(d.Transactions, tx)
	d.hasAnchor = true
	d.nextNonce = tx.Nonce + 1

	for _, slot := range slots {
		d.anchored[slot] = struct{}{}
	}

	return nil
}

// Add appends a transaction of the anchor account
func (d *DraftBlock) Add(tx *ethgo.Transaction) {
	d.Transactions = append(d.Transactions, tx)
	d.nextNonce = tx.Nonce + 1
}

// IsAnchored reports whether the anchor of this draft recorded the slot
func (d *DraftBlock) IsAnchored(slot ethgo.Hash) bool {
	_, ok := d.anchored[slot]

	return ok
}

// HasAnchor reports whether the anchor transaction was added
func (d *DraftBlock) HasAnchor() bool {
	return d.hasAnchor
}

// NextNonce is the nonce of the next transaction of the anchor account
func (d *DraftBlock) NextNonce() uint64 {
	return d.nextNonce
}

// RawTransactions returns the signed transactions in draft order
func (d *DraftBlock) RawTransactions() ([][]byte, error) {
	raw := make([][]byte, 0, len(d.Transactions))

	for _, tx := range d.Transactions {
		buf, err := tx.MarshalRLPTo(nil)
		if err != nil {
			return nil, err
		}

		raw = append(raw, buf)
	}

	return raw, nil
}
