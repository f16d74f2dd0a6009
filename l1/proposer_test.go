package l1

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

func TestProposerChecker_IsPreconfer(t *testing.T) {
	t.Parallel()

	whitelist := ethgo.HexToAddress("0x4000")
	other := ethgo.HexToAddress("0x5000")

	encodeOperator := func(addr ethgo.Address) string {
		var word [32]byte
		copy(word[12:], addr[:])

		return `"` + hex.EncodeToHex(word[:]) + `"`
	}

	t.Run("no whitelist", func(t *testing.T) {
		t.Parallel()

		checker := NewProposerChecker(hclog.NewNullLogger(), new(dummyCaller), ethgo.ZeroAddress, preconferAddr)

		ok, err := checker.IsPreconfer(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("operator", func(t *testing.T) {
		t.Parallel()

		caller := new(dummyCaller)
		caller.On("Call", "eth_call", mock.MatchedBy(func(params []interface{}) bool {
			msg, ok := params[0].(*ethgo.CallMsg)

			return ok && *msg.To == whitelist
		})).Return(encodeOperator(preconferAddr), nil).Once()
		caller.On("Call", "eth_call", mock.Anything).Return(encodeOperator(other), nil).Once()
		caller.On("Call", "eth_call", mock.Anything).Return(nil, errors.New("unavailable")).Once()

		checker := NewProposerChecker(hclog.NewNullLogger(), caller, whitelist, preconferAddr)

		ok, err := checker.IsPreconfer(context.Background())
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = checker.IsPreconfer(context.Background())
		require.NoError(t, err)
		require.False(t, ok)

		_, err = checker.IsPreconfer(context.Background())
		require.ErrorContains(t, err, "unavailable")

		caller.AssertExpectations(t)
	})
}

func TestReceiptChecker_ReceiptStatus(t *testing.T) {
	t.Parallel()

	success := ethgo.HexToHash("0x01")
	reverted := ethgo.HexToHash("0x02")
	missing := ethgo.HexToHash("0x03")

	caller := new(dummyCaller)
	caller.On("Call", "eth_getTransactionReceipt", []interface{}{success}).
		Return(receiptJSON(success, 1), nil)
	caller.On("Call", "eth_getTransactionReceipt", []interface{}{reverted}).
		Return(receiptJSON(reverted, 0), nil)
	caller.On("Call", "eth_getTransactionReceipt", []interface{}{missing}).Return("null", nil)

	checker := NewReceiptChecker(caller)

	found, ok, err := checker.ReceiptStatus(context.Background(), success)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, ok)

	found, ok, err = checker.ReceiptStatus(context.Background(), reverted)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, ok)

	found, _, err = checker.ReceiptStatus(context.Background(), missing)
	require.NoError(t, err)
	require.False(t, found)
}

func receiptJSON(hash ethgo.Hash, status uint64) string {
	return `{
		"transactionHash": "` + hash.String() + `",
		"transactionIndex": "0x0",
		"blockHash": "` + ethgo.HexToHash("0xb1").String() + `",
		"blockNumber": "0x10",
		"from": "` + preconferAddr.String() + `",
		"to": "` + submitterAddr.String() + `",
		"gasUsed": "0x5208",
		"cumulativeGasUsed": "0x5208",
		"logsBloom": "0x00",
		"logs": [],
		"status": "` + hex.EncodeUint64(status) + `"
	}`
}
