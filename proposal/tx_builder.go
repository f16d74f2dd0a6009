package proposal

import (
	"fmt"

	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/contractsapi"
)

// TxBuilderConfig holds the settlement chain contracts called by the proposal transaction
type TxBuilderConfig struct {
	Multicall ethgo.Address
	Inbox     ethgo.Address
	L1Bridge  ethgo.Address
}

// TxBuilder builds the atomic multicall that settles a proposal
type TxBuilder struct {
	config TxBuilderConfig
}

func NewTxBuilder(config TxBuilderConfig) *TxBuilder {
	return &TxBuilder{config: config}
}

// Calls returns the sub calls of the proposal in settlement order:
// the user ops, the batch proposal, then the L1 calls
func (b *TxBuilder) Calls(p *Proposal) ([]contractsapi.Call, error) {
	calls := make([]contractsapi.Call, 0, len(p.UserOps)+1+len(p.L1Calls))

	for _, op := range p.UserOps {
		calls = append(calls, contractsapi.Call{
			Target: op.Submitter,
			Data:   op.Calldata,
		})
	}

	blob, err := EncodeBlob(p.Blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blob: %w", err)
	}

	propose, err := (&contractsapi.ProposeBatchFn{
		BlobData:   blob,
		Checkpoint: p.Checkpoint,
	}).EncodeAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to encode proposeBatch: %w", err)
	}

	calls = append(calls, contractsapi.Call{Target: b.config.Inbox, Data: propose})

	for _, call := range p.L1Calls {
		relay, err := (&contractsapi.RelayL1CallFn{
			Message: call.Message,
			Proof:   call.Proof,
		}).EncodeAbi()
		if err != nil {
			return nil, fmt.Errorf("failed to encode relayL1Call: %w", err)
		}

		calls = append(calls, contractsapi.Call{Target: b.config.L1Bridge, Data: relay})
	}

	return calls, nil
}

// BuildProposeTx returns the unsigned multicall transaction of the proposal
func (b *TxBuilder) BuildProposeTx(p *Proposal) (*ethgo.Transaction, error) {
	calls, err := b.Calls(p)
	if err != nil {
		return nil, err
	}

	input, err := (&contractsapi.MulticallFn{Calls: calls}).EncodeAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to encode multicall: %w", err)
	}

	to := b.config.Multicall

	return &ethgo.Transaction{
		To:    &to,
		Input: input,
	}, nil
}
