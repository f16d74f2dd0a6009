package proposal

import (
	"context"

	"github.com/umbracle/ethgo"

	"github.com/0xPolygon/polygon-preconf/txmonitor"
)

// Submission delivers the notifications of a submitted proposal transaction
type Submission interface {
	TxHash() <-chan ethgo.Hash
	Resubmitted() <-chan ethgo.Hash
	Outcome() <-chan *txmonitor.Outcome
}

// Submitter sends proposal transactions, one at a time
type Submitter interface {
	IsBusy() bool
	Submit(ctx context.Context, tx *ethgo.Transaction) (Submission, error)
}

var _ Submitter = (*monitorSubmitter)(nil)

type monitorSubmitter struct {
	monitor *txmonitor.Monitor
}

// NewMonitorSubmitter submits proposal transactions through the transaction monitor
func NewMonitorSubmitter(monitor *txmonitor.Monitor) Submitter {
	return &monitorSubmitter{monitor: monitor}
}

func (s *monitorSubmitter) IsBusy() bool {
	return s.monitor.IsBusy()
}

func (s *monitorSubmitter) Submit(ctx context.Context, tx *ethgo.Transaction) (Submission, error) {
	handle, err := s.monitor.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}

	return handle, nil
}
