package l2

import (
	"context"
	"fmt"
	"math/big"

	"github.com/hashicorp/go-hclog"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/wallet"

	"github.com/0xPolygon/polygon-preconf/contractsapi"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
	"github.com/0xPolygon/polygon-preconf/l1"
)

const (
	// AnchorGasLimit is the gas limit of the anchor transaction
	AnchorGasLimit = 1_000_000

	defaultProcessMessageGasLimit = 1_000_000
)

// BuilderConfig holds the L2 bridge contracts and the anchor account
type BuilderConfig struct {
	ChainID                uint64
	Anchor                 ethgo.Address
	Bridge                 ethgo.Address
	SignalService          ethgo.Address
	ProcessMessageGasLimit uint64
}

// Builder constructs the bridge transactions injected into L2 draft blocks
type Builder struct {
	logger    hclog.Logger
	client    l1.Caller
	config    BuilderConfig
	anchorKey ethgo.Key
	signer    *wallet.EIP1155Signer
}

// NewBuilder creates the builder. anchorKey signs the anchor and bridge transactions.
func NewBuilder(logger hclog.Logger, client l1.Caller, anchorKey ethgo.Key, config BuilderConfig) *Builder {
	if config.ProcessMessageGasLimit == 0 {
		config.ProcessMessageGasLimit = defaultProcessMessageGasLimit
	}

	return &Builder{
		logger:    logger.Named("l2-builder"),
		client:    client,
		config:    config,
		anchorKey: anchorKey,
		signer:    wallet.NewEIP155Signer(config.ChainID),
	}
}

// ConstructAnchorTx builds the signed anchor transaction that records the checkpoint and the slots.
// The nonce is the anchor account nonce at the parent block.
func (b *Builder) ConstructAnchorTx(ctx context.Context, parent *Header,
	checkpoint contractsapi.Checkpoint, slots []ethgo.Hash) (*ethgo.Transaction, error) {
	input, err := (&contractsapi.AnchorFn{
		Checkpoint:  checkpoint,
		SignalSlots: slots,
	}).EncodeAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to encode anchor: %w", err)
	}

	var nonceHex string
	if err := l1.CallContext(ctx, b.client, "eth_getTransactionCount",
		&nonceHex, b.anchorKey.Address(), hex.EncodeUint64(parent.Number)); err != nil {
		return nil, fmt.Errorf("failed to get anchor account nonce: %w", err)
	}

	nonce, err := hex.DecodeUint64(nonceHex)
	if err != nil {
		return nil, fmt.Errorf("invalid anchor account nonce: %w", err)
	}

	tx, err := b.sign(b.config.Anchor, input, nonce, AnchorGasLimit, parent.BaseFee)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("constructed anchor tx", "nonce", nonce,
		"checkpoint", checkpoint, "slots", len(slots))

	return tx, nil
}

// ConstructL2CallTx builds the signed transaction delivering the message on L2.
// The proof is the signal slot, the slot must be anchored earlier in the same draft.
func (b *Builder) ConstructL2CallTx(draft *DraftBlock, call *l1.L2Call) (*ethgo.Transaction, error) {
	if !draft.IsAnchored(call.SignalSlot) {
		return nil, fmt.Errorf("%w: slot=%s", ErrSlotNotAnchored, call.SignalSlot)
	}

	input, err := (&contractsapi.ProcessMessageFn{
		Message: call.Message,
		Proof:   call.SignalSlot.Bytes(),
	}).EncodeAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to encode processMessage: %w", err)
	}

	tx, err := b.sign(b.config.Bridge, input, draft.NextNonce(), b.config.ProcessMessageGasLimit, draft.Parent.BaseFee)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("constructed bridge tx", "nonce", tx.Nonce, "slot", call.SignalSlot)

	return tx, nil
}

func (b *Builder) sign(to ethgo.Address, input []byte, nonce, gas uint64, baseFee *big.Int) (*ethgo.Transaction, error) {
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}

	tx := &ethgo.Transaction{
		Type:                 ethgo.TransactionDynamicFee,
		ChainID:              new(big.Int).SetUint64(b.config.ChainID),
		Nonce:                nonce,
		To:                   &to,
		Input:                input,
		Gas:                  gas,
		Value:                big.NewInt(0),
		MaxFeePerGas:         new(big.Int).Set(baseFee),
		MaxPriorityFeePerGas: big.NewInt(0),
	}

	signed, err := b.signer.SignTx(tx, b.anchorKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign l2 tx: %w", err)
	}

	return signed, nil
}

// FindMessageAndSignal returns the outbound messages of a sealed block. Each MessageSent of the
// bridge is paired with the SignalSent of the signal service emitted by the same transaction,
// in log emission order.
func (b *Builder) FindMessageAndSignal(ctx context.Context, block *SealedBlock) ([]*OutboundMessage, error) {
	hash := block.Hash

	filter := &ethgo.LogFilter{
		BlockHash: &hash,
		Address:   []ethgo.Address{b.config.Bridge, b.config.SignalService},
	}

	var logs []*ethgo.Log
	if err := l1.CallContext(ctx, b.client, "eth_getLogs", &logs, filter); err != nil {
		return nil, fmt.Errorf("failed to get logs of block %d: %w", block.Number, err)
	}

	return pairOutboundEvents(logs, b.config.Bridge, b.config.SignalService)
}

func pairOutboundEvents(logs []*ethgo.Log, bridgeAddr, signalService ethgo.Address) ([]*OutboundMessage, error) {
	var (
		result []*OutboundMessage
		// messages of the current transaction still waiting for their signal
		waiting []*OutboundMessage
		txHash  ethgo.Hash
	)

	for _, log := range logs {
		if log.Removed {
			continue
		}

		if log.TransactionHash != txHash {
			txHash = log.TransactionHash
			waiting = nil
		}

		switch log.Address {
		case bridgeAddr:
			event := &contractsapi.MessageSentEvent{}

			ok, err := event.ParseLog(log)
			if err != nil {
				return nil, fmt.Errorf("failed to parse MessageSent: %w", err)
			} else if !ok {
				continue
			}

			message, err := event.Message.EncodeAbi()
			if err != nil {
				return nil, err
			}

			waiting = append(waiting, &OutboundMessage{TxHash: log.TransactionHash, Message: message})
		case signalService:
			event := &contractsapi.SignalSentEvent{}

			ok, err := event.ParseLog(log)
			if err != nil {
				return nil, fmt.Errorf("failed to parse SignalSent: %w", err)
			} else if !ok || len(waiting) == 0 {
				continue
			}

			out := waiting[0]
			waiting = waiting[1:]
			out.Slot = event.Slot
			result = append(result, out)
		}
	}

	return result, nil
}
