package l1

import (
	"context"

	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
)

var _ bridge.ReceiptChecker = (*ReceiptChecker)(nil)

// ReceiptChecker reads transaction receipts from the settlement chain
type ReceiptChecker struct {
	client Caller
}

func NewReceiptChecker(client Caller) *ReceiptChecker {
	return &ReceiptChecker{client: client}
}

// ReceiptStatus returns found=false while the transaction is not included
func (r *ReceiptChecker) ReceiptStatus(ctx context.Context, hash ethgo.Hash) (bool, bool, error) {
	var receipt *ethgo.Receipt
	if err := CallContext(ctx, r.client, "eth_getTransactionReceipt", &receipt, hash); err != nil {
		return false, false, err
	}

	if receipt == nil {
		return false, false, nil
	}

	return true, receipt.Status == 1, nil
}
