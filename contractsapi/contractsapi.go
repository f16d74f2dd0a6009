package contractsapi

import (
	"fmt"
	"math/big"

	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/abi"
)

// ABIEncoder is implemented by every contract call binding
type ABIEncoder interface {
	EncodeAbi() ([]byte, error)
}

var (
	checkpointTuple = "tuple(uint48 blockNumber,bytes32 blockHash,bytes32 stateRoot)"
	messageTuple    = "tuple(uint64 id,uint64 fee,uint32 gasLimit,address from,uint64 srcChainId," +
		"address srcOwner,uint64 destChainId,address destOwner,address to,uint256 value,bytes data)"
)

// Checkpoint is the L2 state reference anchored into L1
type Checkpoint struct {
	BlockNumber uint64     `abi:"blockNumber" json:"blockNumber"`
	BlockHash   ethgo.Hash `abi:"blockHash" json:"blockHash"`
	StateRoot   ethgo.Hash `abi:"stateRoot" json:"stateRoot"`
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("checkpoint(number=%d, hash=%s)", c.BlockNumber, c.BlockHash)
}

var (
	// MessageType is the ABI type of a bridge message, used to serialize the message bytes
	// that are handed to processMessage and relayL1Call
	MessageType = abi.MustNewType(messageTuple)
)

// BridgeMessage is the bridge message emitted in MessageSent
type BridgeMessage struct {
	ID          uint64        `abi:"id"`
	Fee         uint64        `abi:"fee"`
	GasLimit    uint32        `abi:"gasLimit"`
	From        ethgo.Address `abi:"from"`
	SrcChainID  uint64        `abi:"srcChainId"`
	SrcOwner    ethgo.Address `abi:"srcOwner"`
	DestChainID uint64        `abi:"destChainId"`
	DestOwner   ethgo.Address `abi:"destOwner"`
	To          ethgo.Address `abi:"to"`
	Value       *big.Int      `abi:"value"`
	Data        []byte        `abi:"data"`
}

// EncodeAbi returns the ABI encoded message tuple
func (m *BridgeMessage) EncodeAbi() ([]byte, error) {
	if m.Value == nil {
		m.Value = big.NewInt(0)
	}

	return abi.Encode(m, MessageType)
}

// DecodeAbi decodes an ABI encoded message tuple
func (m *BridgeMessage) DecodeAbi(buf []byte) error {
	return decodeType(MessageType, buf, m)
}

var (
	MessageSentEventType = abi.MustNewEvent("event MessageSent(bytes32 indexed msgHash," + messageTuple + " message)") //nolint:all
	SignalSentEventType  = abi.MustNewEvent("event SignalSent(address indexed app,bytes32 signal,bytes32 slot,bytes32 value)") //nolint:all
)

// MessageSentEvent is emitted by the bridge when a message is sent to the other chain
type MessageSentEvent struct {
	MsgHash ethgo.Hash    `abi:"msgHash"`
	Message BridgeMessage `abi:"message"`
}

func (m *MessageSentEvent) ParseLog(log *ethgo.Log) (bool, error) {
	if !MessageSentEventType.Match(log) {
		return false, nil
	}

	return true, decodeEvent(MessageSentEventType, log, m)
}

// SignalSentEvent is emitted by the signal service when a signal slot is written
type SignalSentEvent struct {
	App    ethgo.Address `abi:"app"`
	Signal ethgo.Hash    `abi:"signal"`
	Slot   ethgo.Hash    `abi:"slot"`
	Value  ethgo.Hash    `abi:"value"`
}

func (s *SignalSentEvent) ParseLog(log *ethgo.Log) (bool, error) {
	if !SignalSentEventType.Match(log) {
		return false, nil
	}

	return true, decodeEvent(SignalSentEventType, log, s)
}

var (
	anchorMethodType = abi.MustNewMethod("function anchor(" + checkpointTuple + " checkpoint,bytes32[] signalSlots)") //nolint:all
)

// AnchorFn records signal slots on L2 keyed by the checkpoint
type AnchorFn struct {
	Checkpoint  Checkpoint   `abi:"checkpoint"`
	SignalSlots []ethgo.Hash `abi:"signalSlots"`
}

func (a *AnchorFn) EncodeAbi() ([]byte, error) {
	if a.SignalSlots == nil {
		a.SignalSlots = []ethgo.Hash{}
	}

	return anchorMethodType.Encode(a)
}

func (a *AnchorFn) DecodeAbi(buf []byte) error {
	return decodeMethod(anchorMethodType, buf, a)
}

var (
	processMessageMethodType = abi.MustNewMethod("function processMessage(bytes message,bytes proof)") //nolint:all
)

// ProcessMessageFn delivers a bridge message on L2
type ProcessMessageFn struct {
	Message []byte `abi:"message"`
	Proof   []byte `abi:"proof"`
}

func (p *ProcessMessageFn) EncodeAbi() ([]byte, error) {
	return processMessageMethodType.Encode(p)
}

func (p *ProcessMessageFn) DecodeAbi(buf []byte) error {
	return decodeMethod(processMessageMethodType, buf, p)
}

var (
	proposeBatchMethodType = abi.MustNewMethod("function proposeBatch(bytes blobData," + checkpointTuple + " checkpoint)") //nolint:all
)

// ProposeBatchFn proposes the compressed L2 blocks of a proposal to the inbox
type ProposeBatchFn struct {
	BlobData   []byte     `abi:"blobData"`
	Checkpoint Checkpoint `abi:"checkpoint"`
}

func (p *ProposeBatchFn) EncodeAbi() ([]byte, error) {
	return proposeBatchMethodType.Encode(p)
}

func (p *ProposeBatchFn) DecodeAbi(buf []byte) error {
	return decodeMethod(proposeBatchMethodType, buf, p)
}

var (
	relayL1CallMethodType = abi.MustNewMethod("function relayL1Call(bytes message,bytes proof)") //nolint:all
)

// RelayL1CallFn delivers an L2 initiated message on L1
type RelayL1CallFn struct {
	Message []byte `abi:"message"`
	Proof   []byte `abi:"proof"`
}

func (r *RelayL1CallFn) EncodeAbi() ([]byte, error) {
	return relayL1CallMethodType.Encode(r)
}

func (r *RelayL1CallFn) DecodeAbi(buf []byte) error {
	return decodeMethod(relayL1CallMethodType, buf, r)
}

var (
	multicallMethodType = abi.MustNewMethod("function multicall(tuple(address target,bytes data)[] calls)") //nolint:all
)

// Call is a single sub-call of a multicall
type Call struct {
	Target ethgo.Address `abi:"target"`
	Data   []byte        `abi:"data"`
}

// MulticallFn executes all calls atomically, a single revert reverts all of them
type MulticallFn struct {
	Calls []Call `abi:"calls"`
}

func (m *MulticallFn) EncodeAbi() ([]byte, error) {
	return multicallMethodType.Encode(m)
}

func (m *MulticallFn) DecodeAbi(buf []byte) error {
	return decodeMethod(multicallMethodType, buf, m)
}

var (
	getOperatorForCurrentEpochMethodType = abi.MustNewMethod(
		"function getOperatorForCurrentEpoch() returns (address operator)") //nolint:all
)

// GetOperatorForCurrentEpochFn queries the preconfirmation whitelist
type GetOperatorForCurrentEpochFn struct{}

func (g *GetOperatorForCurrentEpochFn) EncodeAbi() ([]byte, error) {
	return getOperatorForCurrentEpochMethodType.Encode([]interface{}{})
}

// DecodeOperator decodes the returned operator address
func (g *GetOperatorForCurrentEpochFn) DecodeOperator(output []byte) (ethgo.Address, error) {
	raw, err := getOperatorForCurrentEpochMethodType.Decode(output)
	if err != nil {
		return ethgo.ZeroAddress, err
	}

	operator, ok := raw["operator"].(ethgo.Address)
	if !ok {
		return ethgo.ZeroAddress, fmt.Errorf("unexpected operator type %T", raw["operator"])
	}

	return operator, nil
}

var (
	messageSentDataType = abi.MustNewType("tuple(" + messageTuple + " message)")
	signalSentDataType  = abi.MustNewType("tuple(bytes32 signal,bytes32 slot,bytes32 value)")
)

// EncodeLog builds the log the bridge contract at emitter would produce for this event
func (m *MessageSentEvent) EncodeLog(emitter ethgo.Address) (*ethgo.Log, error) {
	if m.Message.Value == nil {
		m.Message.Value = big.NewInt(0)
	}

	data, err := abi.Encode(map[string]interface{}{"message": m.Message}, messageSentDataType)
	if err != nil {
		return nil, err
	}

	return &ethgo.Log{
		Address: emitter,
		Topics:  []ethgo.Hash{MessageSentEventType.ID(), m.MsgHash},
		Data:    data,
	}, nil
}

// EncodeLog builds the log the signal service at emitter would produce for this event
func (s *SignalSentEvent) EncodeLog(emitter ethgo.Address) (*ethgo.Log, error) {
	data, err := abi.Encode(map[string]interface{}{
		"signal": s.Signal,
		"slot":   s.Slot,
		"value":  s.Value,
	}, signalSentDataType)
	if err != nil {
		return nil, err
	}

	var appTopic ethgo.Hash

	copy(appTopic[12:], s.App[:])

	return &ethgo.Log{
		Address: emitter,
		Topics:  []ethgo.Hash{SignalSentEventType.ID(), appTopic},
		Data:    data,
	}, nil
}
