package l1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"
	"github.com/umbracle/ethgo"
	"github.com/umbracle/ethgo/jsonrpc/codec"

	"github.com/0xPolygon/polygon-preconf/bridge"
	"github.com/0xPolygon/polygon-preconf/contractsapi"
)

const (
	defaultSimulationTimeout = 10 * time.Second
	defaultRetryInterval     = 500 * time.Millisecond
)

var (
	// ErrSimulationRejected is wrapped by every simulation rejection
	ErrSimulationRejected = errors.New("simulation rejected")

	reasonMissingMessage = "missing message event"
	reasonMissingSignal  = "missing signal event"
	reasonTimedOut       = "simulation timed out"
)

// SimulationRejectedError carries the reason the user op was rejected by simulation
type SimulationRejectedError struct {
	Reason string
}

func (e *SimulationRejectedError) Error() string {
	return e.Reason
}

func (e *SimulationRejectedError) Unwrap() error {
	return ErrSimulationRejected
}

func rejected(format string, args ...interface{}) error {
	return &SimulationRejectedError{Reason: fmt.Sprintf(format, args...)}
}

// L2Call is the L1 to L2 message detected by simulation together with its signal slot
type L2Call struct {
	Message    []byte
	SignalSlot ethgo.Hash
}

// BridgeEventPair is the message and signal emitted within one simulated call tree
type BridgeEventPair struct {
	Message *contractsapi.MessageSentEvent
	Signal  *contractsapi.SignalSentEvent
}

// L2Call returns the ABI encoded message bound to the signal slot
func (p *BridgeEventPair) L2Call() (*L2Call, error) {
	message, err := p.Message.Message.EncodeAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to encode bridge message: %w", err)
	}

	return &L2Call{
		Message:    message,
		SignalSlot: p.Signal.Slot,
	}, nil
}

// SimulatorConfig holds the settlement chain addresses and limits of the simulator
type SimulatorConfig struct {
	Preconfer     ethgo.Address
	Bridge        ethgo.Address
	SignalService ethgo.Address
	Timeout       time.Duration
	RetryInterval time.Duration
}

// Simulator executes user ops against the latest settlement chain state without committing them
type Simulator struct {
	logger hclog.Logger
	client Caller
	config SimulatorConfig
}

// NewSimulator creates the simulator on top of a client that supports debug_traceCall
func NewSimulator(logger hclog.Logger, client Caller, config SimulatorConfig) *Simulator {
	if config.Timeout <= 0 {
		config.Timeout = defaultSimulationTimeout
	}

	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}

	return &Simulator{
		logger: logger.Named("simulator"),
		client: client,
		config: config,
	}
}

// FindMessageAndSignal simulates the user op as a call from the preconfer to the submitter
// and returns the first MessageSent and the first SignalSent of the call tree.
// The result reflects the state at simulation time, a state change on L1 before inclusion
// may still make the user op revert.
func (s *Simulator) FindMessageAndSignal(ctx context.Context, op *bridge.UserOp) (*BridgeEventPair, error) {
	frame, err := s.traceCall(ctx, op)
	if err != nil {
		return nil, err
	}

	if frame.Failed() {
		return nil, rejected("simulation reverted: %s", frame.FailureReason())
	}

	pair, err := s.findEvents(frame)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("simulated user op", "id", op.ID,
		"msg_hash", pair.Message.MsgHash, "slot", pair.Signal.Slot)

	return pair, nil
}

func (s *Simulator) traceCall(parent context.Context, op *bridge.UserOp) (*CallFrame, error) {
	ctx, cancel := context.WithTimeout(parent, s.config.Timeout)
	defer cancel()

	args := &traceCallArgs{
		From:  s.config.Preconfer,
		To:    op.Submitter,
		Input: op.Calldata,
	}

	var frame *CallFrame

	err := retry.Do(ctx, retry.NewConstant(s.config.RetryInterval), func(ctx context.Context) error {
		var out *CallFrame

		err := CallContext(ctx, s.client, "debug_traceCall", &out, args, ethgo.Latest.String(), callTracerWithLogs)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		} else if err != nil {
			var rpcErr *codec.ErrorObject
			if errors.As(err, &rpcErr) {
				return rejected("rpc error: %s", rpcErr.Message)
			}

			s.logger.Debug("simulation failed, retrying", "id", op.ID, "err", err)

			return retry.RetryableError(err)
		}

		if out == nil {
			return rejected("rpc error: empty trace")
		}

		frame = out

		return nil
	})

	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, ErrSimulationRejected):
		return nil, err
	case parent.Err() != nil:
		// shutdown, the user op was not judged
		return nil, parent.Err()
	case ctx.Err() != nil:
		return nil, &SimulationRejectedError{Reason: reasonTimedOut}
	default:
		return nil, rejected("rpc error: %v", err)
	}
}

func (s *Simulator) findEvents(frame *CallFrame) (*BridgeEventPair, error) {
	var (
		message *contractsapi.MessageSentEvent
		signal  *contractsapi.SignalSentEvent
		err     error
	)

	frame.Walk(func(callLog *CallLog) bool {
		log := callLog.toLog()

		switch {
		case message == nil && log.Address == s.config.Bridge:
			event := &contractsapi.MessageSentEvent{}

			var ok bool
			if ok, err = event.ParseLog(log); err != nil {
				return false
			} else if ok {
				message = event
			}
		case signal == nil && log.Address == s.config.SignalService:
			event := &contractsapi.SignalSentEvent{}

			var ok bool
			if ok, err = event.ParseLog(log); err != nil {
				return false
			} else if ok {
				signal = event
			}
		}

		return message == nil || signal == nil
	})

	if err != nil {
		return nil, rejected("rpc error: malformed event: %v", err)
	}

	if message == nil {
		return nil, &SimulationRejectedError{Reason: reasonMissingMessage}
	}

	if signal == nil {
		return nil, &SimulationRejectedError{Reason: reasonMissingSignal}
	}

	return &BridgeEventPair{Message: message, Signal: signal}, nil
}
