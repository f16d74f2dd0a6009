package l2

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/wallet"

	"github.com/0xPolygon/polygon-preconf/contractsapi"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
	"github.com/0xPolygon/polygon-preconf/l1"
)

var (
	anchorAddr        = ethgo.HexToAddress("0x0a")
	l2BridgeAddr      = ethgo.HexToAddress("0x0b")
	l2SignalService   = ethgo.HexToAddress("0x0c")
	testCheckpoint    = contractsapi.Checkpoint{BlockNumber: 9, BlockHash: ethgo.HexToHash("0x09"), StateRoot: ethgo.HexToHash("0x99")}
	testParent        = &Header{Number: 10, Hash: ethgo.HexToHash("0x10"), BaseFee: big.NewInt(1_000)}
	testSlot          = ethgo.HexToHash("0x5107")
	testMessageTarget = ethgo.HexToAddress("0xBB")
)

func newTestBuilder(t *testing.T, caller l1.Caller) (*Builder, *wallet.Key) {
	t.Helper()

	key, err := wallet.GenerateKey()
	require.NoError(t, err)

	return NewBuilder(hclog.NewNullLogger(), caller, key, BuilderConfig{
		ChainID:       167,
		Anchor:        anchorAddr,
		Bridge:        l2BridgeAddr,
		SignalService: l2SignalService,
	}), key
}

func TestBuilder_ConstructAnchorTx(t *testing.T) {
	t.Parallel()

	caller := new(dummyCaller)
	builder, key := newTestBuilder(t, caller)

	caller.On("Call", "eth_getTransactionCount", []interface{}{key.Address(), "0xa"}).Return(`"0x5"`, nil)

	slots := []ethgo.Hash{testSlot, ethgo.HexToHash("0x01")}

	tx, err := builder.ConstructAnchorTx(context.Background(), testParent, testCheckpoint, slots)
	require.NoError(t, err)

	assert.Equal(t, ethgo.TransactionDynamicFee, tx.Type)
	assert.Equal(t, uint64(5), tx.Nonce)
	assert.Equal(t, uint64(AnchorGasLimit), tx.Gas)
	assert.Equal(t, anchorAddr, *tx.To)
	assert.Equal(t, big.NewInt(1_000), tx.MaxFeePerGas)
	assert.Equal(t, big.NewInt(0), tx.MaxPriorityFeePerGas)
	assert.NotNil(t, tx.R)

	decoded := &contractsapi.AnchorFn{}
	require.NoError(t, decoded.DecodeAbi(tx.Input))
	assert.Equal(t, testCheckpoint, decoded.Checkpoint)
	assert.Equal(t, slots, decoded.SignalSlots)

	caller.AssertExpectations(t)
}

func TestBuilder_ConstructL2CallTx(t *testing.T) {
	t.Parallel()

	caller := new(dummyCaller)
	builder, key := newTestBuilder(t, caller)

	caller.On("Call", "eth_getTransactionCount", []interface{}{key.Address(), "0xa"}).Return(`"0x0"`, nil)

	call := &l1.L2Call{Message: []byte{0x01, 0x02}, SignalSlot: testSlot}

	draft := NewDraftBlock(testParent)

	// the anchor that records the slot is not in the draft yet
	_, err := builder.ConstructL2CallTx(draft, call)
	require.ErrorIs(t, err, ErrSlotNotAnchored)

	anchor, err := builder.ConstructAnchorTx(context.Background(), testParent, testCheckpoint, []ethgo.Hash{testSlot})
	require.NoError(t, err)
	require.NoError(t, draft.AddAnchor(anchor, []ethgo.Hash{testSlot}))

	tx, err := builder.ConstructL2CallTx(draft, call)
	require.NoError(t, err)
	draft.Add(tx)

	assert.Equal(t, uint64(1), tx.Nonce)
	assert.Equal(t, l2BridgeAddr, *tx.To)

	decoded := &contractsapi.ProcessMessageFn{}
	require.NoError(t, decoded.DecodeAbi(tx.Input))
	assert.Equal(t, call.Message, decoded.Message)
	assert.Equal(t, testSlot.Bytes(), decoded.Proof)

	// a slot of another user op is still rejected
	_, err = builder.ConstructL2CallTx(draft, &l1.L2Call{Message: []byte{1}, SignalSlot: ethgo.HexToHash("0xdead")})
	require.ErrorIs(t, err, ErrSlotNotAnchored)

	raw, err := draft.RawTransactions()
	require.NoError(t, err)
	require.Len(t, raw, 2)
}

func outboundLogs(t *testing.T, txHash ethgo.Hash, id uint64, slot byte) []*ethgo.Log {
	t.Helper()

	message := &contractsapi.MessageSentEvent{
		MsgHash: ethgo.BytesToHash([]byte{byte(id)}),
		Message: contractsapi.BridgeMessage{ID: id, To: testMessageTarget, Value: big.NewInt(0)},
	}

	messageLog, err := message.EncodeLog(l2BridgeAddr)
	require.NoError(t, err)

	signal := &contractsapi.SignalSentEvent{App: l2BridgeAddr, Slot: ethgo.BytesToHash([]byte{slot})}

	signalLog, err := signal.EncodeLog(l2SignalService)
	require.NoError(t, err)

	messageLog.TransactionHash = txHash
	signalLog.TransactionHash = txHash

	return []*ethgo.Log{messageLog, signalLog}
}

func TestBuilder_FindMessageAndSignal(t *testing.T) {
	t.Parallel()

	tx1 := ethgo.HexToHash("0x01")
	tx2 := ethgo.HexToHash("0x02")
	tx3 := ethgo.HexToHash("0x03")

	var logs []*ethgo.Log

	logs = append(logs, outboundLogs(t, tx1, 1, 0x11)...)
	logs = append(logs, outboundLogs(t, tx2, 2, 0x22)...)
	// a message without a signal in its transaction is not paired with the next transaction's signal
	logs = append(logs, outboundLogs(t, tx3, 3, 0x33)[0])
	logs = append(logs, &ethgo.Log{Address: l2SignalService, TransactionHash: tx1})

	raw := logsJSON(t, logs)

	block := &SealedBlock{Number: 11, Hash: ethgo.HexToHash("0x11")}

	caller := new(dummyCaller)
	caller.On("Call", "eth_getLogs", mock.MatchedBy(func(params []interface{}) bool {
		filter, ok := params[0].(*ethgo.LogFilter)

		return ok && *filter.BlockHash == block.Hash
	})).Return(raw, nil)

	builder, _ := newTestBuilder(t, caller)

	messages, err := builder.FindMessageAndSignal(context.Background(), block)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	for i, expected := range []struct {
		tx   ethgo.Hash
		id   uint64
		slot byte
	}{{tx1, 1, 0x11}, {tx2, 2, 0x22}} {
		assert.Equal(t, expected.tx, messages[i].TxHash)
		assert.Equal(t, ethgo.BytesToHash([]byte{expected.slot}), messages[i].Slot)

		decoded := &contractsapi.BridgeMessage{}
		require.NoError(t, decoded.DecodeAbi(messages[i].Message))
		assert.Equal(t, expected.id, decoded.ID)
	}
}

func TestDraftBlock_AnchorFirst(t *testing.T) {
	t.Parallel()

	draft := NewDraftBlock(testParent)
	require.False(t, draft.HasAnchor())

	draft.Add(&ethgo.Transaction{Nonce: 3})
	require.Error(t, draft.AddAnchor(&ethgo.Transaction{Nonce: 4}, nil))

	draft = NewDraftBlock(testParent)
	require.NoError(t, draft.AddAnchor(&ethgo.Transaction{Nonce: 4}, []ethgo.Hash{testSlot}))
	require.True(t, draft.HasAnchor())
	require.True(t, draft.IsAnchored(testSlot))
	require.Equal(t, uint64(5), draft.NextNonce())
	require.Error(t, draft.AddAnchor(&ethgo.Transaction{Nonce: 5}, nil))
}

// logsJSON encodes logs the way eth_getLogs returns them
func logsJSON(t *testing.T, logs []*ethgo.Log) string {
	t.Helper()

	encoded := make([]string, len(logs))

	for i, log := range logs {
		topics := make([]string, len(log.Topics))
		for j, topic := range log.Topics {
			topics[j] = topic.String()
		}

		obj := map[string]interface{}{
			"removed":          false,
			"logIndex":         hex.EncodeUint64(uint64(i)),
			"transactionIndex": "0x0",
			"transactionHash":  log.TransactionHash.String(),
			"blockHash":        ethgo.HexToHash("0x11").String(),
			"blockNumber":      "0xb",
			"address":          log.Address.String(),
			"data":             hex.EncodeToHex(log.Data),
			"topics":           topics,
		}

		raw, err := json.Marshal(obj)
		require.NoError(t, err)

		encoded[i] = string(raw)
	}

	return "[" + strings.Join(encoded, ",") + "]"
}
