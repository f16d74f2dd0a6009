package l2

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/ethgo"
)

func TestHTTPDriver_SealBlock(t *testing.T) {
	t.Parallel()

	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, sealBlockPath, r.URL.Path)

		// the first attempt fails and is retried by the client
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		var req sealBlockRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, testParent.Hash, req.ParentHash)
		assert.Equal(t, uint64(11), req.BlockNumber)
		assert.Equal(t, "0x3e8", req.BaseFee)

		block := &SealedBlock{
			Number:       req.BlockNumber,
			Hash:         ethgo.HexToHash("0x11"),
			StateRoot:    ethgo.HexToHash("0x5a"),
			Timestamp:    1700000000,
			Transactions: append(req.Transactions, []byte{0xf8, 0x01}),
		}

		require.NoError(t, json.NewEncoder(w).Encode(block))
	}))
	defer server.Close()

	driver := NewHTTPDriver(hclog.NewNullLogger(), server.URL+"/", new(dummyCaller))

	draft := NewDraftBlock(testParent)
	require.NoError(t, draft.AddAnchor(&ethgo.Transaction{
		Type:                 ethgo.TransactionDynamicFee,
		ChainID:              big.NewInt(167),
		Nonce:                1,
		Gas:                  AnchorGasLimit,
		To:                   &anchorAddr,
		Value:                big.NewInt(0),
		MaxFeePerGas:         big.NewInt(1_000),
		MaxPriorityFeePerGas: big.NewInt(0),
	}, nil))

	block, err := driver.SealBlock(context.Background(), draft)
	require.NoError(t, err)

	assert.Equal(t, uint64(11), block.Number)
	assert.Equal(t, ethgo.HexToHash("0x5a"), block.StateRoot)
	assert.Len(t, block.Transactions, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestHTTPDriver_SealBlockRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid parent"))
	}))
	defer server.Close()

	driver := NewHTTPDriver(hclog.NewNullLogger(), server.URL, new(dummyCaller))

	_, err := driver.SealBlock(context.Background(), NewDraftBlock(testParent))
	require.ErrorContains(t, err, "invalid parent")
}

func TestHTTPDriver_HeadAndPending(t *testing.T) {
	t.Parallel()

	caller := new(dummyCaller)
	caller.On("Call", "eth_getBlockByNumber", []interface{}{"latest", false}).Return(`{
		"number": "0x10",
		"hash": "`+ethgo.HexToHash("0x10").String()+`",
		"stateRoot": "`+ethgo.HexToHash("0x20").String()+`",
		"timestamp": "0x6553f100",
		"baseFeePerGas": "0x3b9aca00"
	}`, nil)
	caller.On("Call", "txpool_status", []interface{}(nil)).Return(`{"pending":"0x2","queued":"0x0"}`, nil).Once()
	caller.On("Call", "txpool_status", []interface{}(nil)).Return(`{"pending":"0x0","queued":"0x1"}`, nil).Once()

	driver := NewHTTPDriver(hclog.NewNullLogger(), "http://127.0.0.1:1", caller)

	head, err := driver.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), head.Number)
	assert.Equal(t, uint64(0x6553f100), head.Timestamp)
	assert.Equal(t, big.NewInt(1_000_000_000), head.BaseFee)
	assert.Equal(t, ethgo.HexToHash("0x20"), head.StateRoot)

	pending, err := driver.HasPendingTransactions(context.Background())
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = driver.HasPendingTransactions(context.Background())
	require.NoError(t, err)
	assert.False(t, pending)
}
