package l2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
	"github.com/0xPolygon/polygon-preconf/l1"
)

const (
	sealBlockPath = "/preconfBlocks"

	defaultDriverTimeout = 10 * time.Second
	defaultDriverRetries = 3
)

// Driver is the L2 block producer that seals draft blocks
type Driver interface {
	// Head returns the header the next draft builds on
	Head(ctx context.Context) (*Header, error)
	// SealBlock executes and seals the draft together with the pending ordinary transactions
	SealBlock(ctx context.Context, draft *DraftBlock) (*SealedBlock, error)
	// HasPendingTransactions reports whether ordinary transactions wait in the L2 mempool
	HasPendingTransactions(ctx context.Context) (bool, error)
}

var _ Driver = (*HTTPDriver)(nil)

// HTTPDriver seals blocks through the driver preconfirmation api and reads the chain through the L2 rpc
type HTTPDriver struct {
	logger hclog.Logger
	url    string
	http   *retryablehttp.Client
	rpc    l1.Caller
}

// NewHTTPDriver creates the driver client
func NewHTTPDriver(logger hclog.Logger, url string, rpc l1.Caller) *HTTPDriver {
	logger = logger.Named("driver")

	client := retryablehttp.NewClient()
	client.Logger = logger
	client.RetryMax = defaultDriverRetries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = defaultDriverTimeout

	return &HTTPDriver{
		logger: logger,
		url:    strings.TrimSuffix(url, "/"),
		http:   client,
		rpc:    rpc,
	}
}

// sealBlockRequest is the body of the seal request
type sealBlockRequest struct {
	ParentHash   ethgo.Hash        `json:"parentHash"`
	BlockNumber  uint64            `json:"blockNumber"`
	BaseFee      string            `json:"baseFeePerGas"`
	Transactions []bridge.HexBytes `json:"transactions"`
}

func (d *HTTPDriver) SealBlock(ctx context.Context, draft *DraftBlock) (*SealedBlock, error) {
	raw, err := draft.RawTransactions()
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft transactions: %w", err)
	}

	req := &sealBlockRequest{
		ParentHash:   draft.Parent.Hash,
		BlockNumber:  draft.Parent.Number + 1,
		BaseFee:      "0x0",
		Transactions: make([]bridge.HexBytes, len(raw)),
	}

	if draft.Parent.BaseFee != nil {
		req.BaseFee = "0x" + draft.Parent.BaseFee.Text(16)
	}

	for i, tx := range raw {
		req.Transactions[i] = tx
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.url+sealBlockPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to seal block: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read seal response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to seal block: status=%d body=%s", resp.StatusCode, respBody)
	}

	block := &SealedBlock{}
	if err := json.Unmarshal(respBody, block); err != nil {
		return nil, fmt.Errorf("invalid seal response: %w", err)
	}

	d.logger.Debug("sealed block", "number", block.Number, "hash", block.Hash, "txs", len(block.Transactions))

	return block, nil
}

func (d *HTTPDriver) Head(ctx context.Context) (*Header, error) {
	var header *Header
	if err := l1.CallContext(ctx, d.rpc, "eth_getBlockByNumber", &header, ethgo.Latest.String(), false); err != nil {
		return nil, fmt.Errorf("failed to get l2 head: %w", err)
	}

	if header == nil {
		return nil, fmt.Errorf("l2 head not available")
	}

	return header, nil
}

// txPoolStatus is the result of txpool_status
type txPoolStatus struct {
	Pending string `json:"pending"`
	Queued  string `json:"queued"`
}

func (d *HTTPDriver) HasPendingTransactions(ctx context.Context) (bool, error) {
	var status txPoolStatus
	if err := l1.CallContext(ctx, d.rpc, "txpool_status", &status); err != nil {
		return false, fmt.Errorf("failed to get l2 txpool status: %w", err)
	}

	pending, err := hex.DecodeUint64(status.Pending)
	if err != nil {
		return false, fmt.Errorf("invalid txpool status: %w", err)
	}

	return pending > 0, nil
}
