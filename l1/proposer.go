package l1

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/contractsapi"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

// ProposerChecker tells whether this node is the preconfer of the current epoch
type ProposerChecker struct {
	logger    hclog.Logger
	client    Caller
	whitelist ethgo.Address
	preconfer ethgo.Address
}

// NewProposerChecker creates the checker. A zero whitelist address disables the check.
func NewProposerChecker(logger hclog.Logger, client Caller, whitelist, preconfer ethgo.Address) *ProposerChecker {
	return &ProposerChecker{
		logger:    logger.Named("proposer"),
		client:    client,
		whitelist: whitelist,
		preconfer: preconfer,
	}
}

// IsPreconfer compares the operator of the current epoch with the preconfer address
func (p *ProposerChecker) IsPreconfer(ctx context.Context) (bool, error) {
	if p.whitelist == ethgo.ZeroAddress {
		return true, nil
	}

	fn := &contractsapi.GetOperatorForCurrentEpochFn{}

	input, err := fn.EncodeAbi()
	if err != nil {
		return false, err
	}

	msg := &ethgo.CallMsg{
		From: p.preconfer,
		To:   &p.whitelist,
		Data: input,
	}

	var out string
	if err := CallContext(ctx, p.client, "eth_call", &out, msg, ethgo.Latest.String()); err != nil {
		return false, fmt.Errorf("failed to query current operator: %w", err)
	}

	raw, err := hex.DecodeHex(out)
	if err != nil {
		return false, fmt.Errorf("invalid operator response: %w", err)
	}

	operator, err := fn.DecodeOperator(raw)
	if err != nil {
		return false, err
	}

	isPreconfer := operator == p.preconfer
	if !isPreconfer {
		p.logger.Debug("not the preconfer of the current epoch", "operator", operator)
	}

	return isPreconfer, nil
}
