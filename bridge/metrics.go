package bridge

import (
	"github.com/armon/go-metrics"
)

const bridgeMetrics = "bridge"

func updateQueueMetrics(queueLen int) {
	metrics.SetGauge([]string{bridgeMetrics, "queue_length"}, float32(queueLen))
}

func incStatusMetric(status StatusKind) {
	metrics.IncrCounter([]string{bridgeMetrics, "user_ops", string(status)}, 1)
}
