package proposal

import (
	"time"

	"github.com/armon/go-metrics"
)

func incProposalMetric(state State) {
	metrics.IncrCounter([]string{"proposal", state.String()}, 1)
}

func setReadyProposalsMetric(count int) {
	metrics.SetGauge([]string{"proposal", "ready_queue"}, float32(count))
}

func observeProposalMetrics(p *Proposal, blobSize int) {
	metrics.AddSample([]string{"proposal", "blocks"}, float32(len(p.Blocks)))
	metrics.AddSample([]string{"proposal", "user_ops"}, float32(len(p.UserOps)))
	metrics.AddSample([]string{"proposal", "blob_bytes"}, float32(blobSize))
	metrics.MeasureSince([]string{"proposal", "age"}, p.CreatedAt)
}

func measureStepMetric(start time.Time) {
	metrics.MeasureSince([]string{"proposal", "step"}, start)
}
