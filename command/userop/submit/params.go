package submit

import (
	"errors"
	"fmt"

	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

const (
	submitterFlag = "submitter"
	calldataFlag  = "calldata"

	addressLength = 20
)

var (
	errInvalidSubmitter = errors.New("invalid submitter address")
)

var (
	params = &submitParams{}
)

type submitParams struct {
	submitterRaw string
	calldataRaw  string

	userOp *bridge.UserOp
}

func (p *submitParams) validateFlags() error {
	submitter, err := hex.DecodeFixedHex(p.submitterRaw, addressLength)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidSubmitter, err)
	}

	calldata, err := hex.DecodeHex(p.calldataRaw)
	if err != nil {
		return fmt.Errorf("invalid calldata: %w", err)
	}

	p.userOp = &bridge.UserOp{
		Submitter: ethgo.BytesToAddress(submitter),
		Calldata:  calldata,
	}

	return p.userOp.Validate()
}
