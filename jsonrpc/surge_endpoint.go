package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

// userOpHandler is the part of the bridge handler served by the intake endpoint
type userOpHandler interface {
	Submit(op *bridge.UserOp) (uint64, error)
	Status(id uint64) (bridge.UserOpStatus, error)
}

var _ userOpHandler = (*bridge.Handler)(nil)

// Surge is the user op intake endpoint
type Surge struct {
	logger  hclog.Logger
	handler userOpHandler
}

// SendUserOpRequest is the parameter of surge_sendUserOp
type SendUserOpRequest struct {
	Submitter string `json:"submitter"`
	Calldata  string `json:"calldata"`
}

// SendUserOp queues the user op and returns its id
func (s *Surge) SendUserOp(req *SendUserOpRequest) (interface{}, error) {
	if req == nil {
		return nil, NewInvalidParamsError("missing user op")
	}

	op, err := req.toUserOp()
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}

	id, err := s.handler.Submit(op)
	if err != nil {
		return nil, toRPCError(err)
	}

	return id, nil
}

// UserOpStatus returns the current status of the user op
func (s *Surge) UserOpStatus(id argUint64) (interface{}, error) {
	status, err := s.handler.Status(uint64(id))
	if err != nil {
		return nil, toRPCError(err)
	}

	return status, nil
}

func (r *SendUserOpRequest) toUserOp() (*bridge.UserOp, error) {
	submitter, err := hex.DecodeFixedHex(r.Submitter, 20)
	if err != nil {
		return nil, fmt.Errorf("invalid submitter: %w", err)
	}

	calldata, err := hex.DecodeHex(r.Calldata)
	if err != nil {
		return nil, fmt.Errorf("invalid calldata: %w", err)
	}

	op := &bridge.UserOp{Calldata: calldata}
	copy(op.Submitter[:], submitter)

	return op, nil
}

// toRPCError maps bridge errors to their json rpc error codes
func toRPCError(err error) Error {
	switch {
	case errors.Is(err, bridge.ErrValidation):
		return NewInvalidParamsError(err.Error())
	case errors.Is(err, bridge.ErrNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, bridge.ErrStorage):
		return NewStorageError(err.Error())
	default:
		return NewInternalError(err.Error())
	}
}

// argUint64 accepts both a json number and a hex encoded quantity
type argUint64 uint64

func (u *argUint64) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		num, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user op id %s", data)
		}

		*u = argUint64(num)

		return nil
	}

	var (
		num uint64
		err error
	)

	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		num, err = hex.DecodeUint64(str)
	} else {
		num, err = strconv.ParseUint(str, 10, 64)
	}

	if err != nil {
		return fmt.Errorf("invalid user op id %q", str)
	}

	*u = argUint64(num)

	return nil
}
