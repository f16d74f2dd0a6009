package txmonitor

import (
	"github.com/armon/go-metrics"
)

func incAttemptsMetric() {
	metrics.IncrCounter([]string{"txmonitor", "attempts"}, 1)
}

func incOutcomeMetric(status Status) {
	metrics.IncrCounter([]string{"txmonitor", "outcome", status.String()}, 1)
}

func setGasPriceMetric(price uint64) {
	metrics.SetGauge([]string{"txmonitor", "gas_price"}, float32(price))
}
