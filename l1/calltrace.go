package l1

import (
	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/bridge"
)

// traceCallConfig selects the call tracer with logs
type traceCallConfig struct {
	Tracer       string       `json:"tracer"`
	TracerConfig tracerConfig `json:"tracerConfig"`
}

type tracerConfig struct {
	WithLog bool `json:"withLog"`
}

var callTracerWithLogs = &traceCallConfig{
	Tracer:       "callTracer",
	TracerConfig: tracerConfig{WithLog: true},
}

// traceCallArgs is the message simulated by debug_traceCall
type traceCallArgs struct {
	From  ethgo.Address   `json:"from"`
	To    ethgo.Address   `json:"to"`
	Input bridge.HexBytes `json:"input"`
}

// CallFrame is a frame of the call tracer output
type CallFrame struct {
	Type         string          `json:"type"`
	From         ethgo.Address   `json:"from"`
	To           *ethgo.Address  `json:"to,omitempty"`
	Input        bridge.HexBytes `json:"input"`
	Output       bridge.HexBytes `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	RevertReason string          `json:"revertReason,omitempty"`
	Logs         []CallLog       `json:"logs,omitempty"`
	Calls        []*CallFrame    `json:"calls,omitempty"`
}

// CallLog is a log emitted inside a call frame
type CallLog struct {
	Address ethgo.Address   `json:"address"`
	Topics  []ethgo.Hash    `json:"topics"`
	Data    bridge.HexBytes `json:"data"`
}

func (l *CallLog) toLog() *ethgo.Log {
	return &ethgo.Log{
		Address: l.Address,
		Topics:  l.Topics,
		Data:    l.Data,
	}
}

// Failed reports whether the frame reverted
func (c *CallFrame) Failed() bool {
	return c.Error != ""
}

// FailureReason returns the revert reason when present, otherwise the tracer error
func (c *CallFrame) FailureReason() string {
	if c.RevertReason != "" {
		return c.RevertReason
	}

	return c.Error
}

// Walk visits the logs of the call tree in pre-order: the logs of a frame come before
// the logs of its sub calls, sub calls are visited in call order.
// Frames that reverted are skipped with their sub calls since their logs are discarded.
// The walk stops when fn returns false.
func (c *CallFrame) Walk(fn func(log *CallLog) bool) {
	c.walk(fn)
}

func (c *CallFrame) walk(fn func(log *CallLog) bool) bool {
	if c.Failed() {
		return true
	}

	for i := range c.Logs {
		if !fn(&c.Logs[i]) {
			return false
		}
	}

	for _, call := range c.Calls {
		if !call.walk(fn) {
			return false
		}
	}

	return true
}
