package txmonitor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/umbracle/ethgo"
)

var (
	// ErrTransactionInProgress is returned when a transaction is submitted while another is monitored
	ErrTransactionInProgress = errors.New("transaction in progress")
	// ErrMonitorExhausted is the error of a transaction not included after all gas bumps
	ErrMonitorExhausted = errors.New("gas bump attempts exhausted")
	// ErrDropped is the error of a transaction whose nonce was consumed by another transaction
	ErrDropped = errors.New("transaction dropped")
)

// Status is the terminal status of a monitored transaction
type Status int

const (
	// Confirmed means the transaction was included, succeeded and reached the required confirmations
	Confirmed Status = iota
	// Reverted means the transaction was included and failed
	Reverted
	// Failed means the transaction could not be sent or was not included after all attempts
	Failed
	// Dropped means the nonce was used by another transaction
	Dropped
)

func (s Status) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Reverted:
		return "reverted"
	case Failed:
		return "failed"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Outcome is the terminal notification of a monitored transaction
type Outcome struct {
	Status  Status
	TxHash  ethgo.Hash
	Receipt *ethgo.Receipt
	Err     error
}

// Handle delivers the notifications of one monitored transaction.
// The hash of the first send is delivered before the outcome, each at most once.
// The hashes of gas bumped resubmissions follow the first hash in send order.
// Both hash channels are closed before the outcome is delivered.
type Handle struct {
	txHash      chan ethgo.Hash
	resubmitted chan ethgo.Hash
	outcome     chan *Outcome

	hashOnce    sync.Once
	outcomeOnce sync.Once
}

// newHandle buffers maxResubmissions hashes so the monitor never blocks on a slow consumer
func newHandle(maxResubmissions uint64) *Handle {
	return &Handle{
		txHash:      make(chan ethgo.Hash, 1),
		resubmitted: make(chan ethgo.Hash, maxResubmissions),
		outcome:     make(chan *Outcome, 1),
	}
}

// TxHash returns the channel that receives the hash of the first sent transaction
func (h *Handle) TxHash() <-chan ethgo.Hash {
	return h.txHash
}

// Resubmitted returns the channel that receives the hash of every resubmitted transaction
func (h *Handle) Resubmitted() <-chan ethgo.Hash {
	return h.resubmitted
}

// Outcome returns the channel that receives the terminal outcome
func (h *Handle) Outcome() <-chan *Outcome {
	return h.outcome
}

func (h *Handle) resolveHash(hash ethgo.Hash) {
	h.hashOnce.Do(func() {
		h.txHash <- hash
		close(h.txHash)
	})
}

func (h *Handle) resolveResubmission(hash ethgo.Hash) {
	h.resubmitted <- hash
}

func (h *Handle) resolve(outcome *Outcome) {
	h.hashOnce.Do(func() {
		close(h.txHash)
	})

	h.outcomeOnce.Do(func() {
		close(h.resubmitted)
		h.outcome <- outcome
		close(h.outcome)
	})
}
