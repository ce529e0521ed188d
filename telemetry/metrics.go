package telemetry

import (
	"github.com/armon/go-metrics"
)

const relayerMetricsPrefix = "relayer"

func UpdateEventsObservedCounter(pair string, cnt int) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "events_observed_counter", pair}, float32(cnt))
}

func UpdateEventsRelayedCounter(pair string) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "events_relayed_counter", pair}, 1)
}

func UpdateEventsRejectedCounter(pair string) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "events_rejected_counter", pair}, 1)
}

func UpdateEventsSimulatedCounter(pair string) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "events_simulated_counter", pair}, 1)
}

func UpdateBroadcastAttemptsCounter(pair string, cnt int) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "broadcast_attempts_counter", pair}, float32(cnt))
}

func UpdateReorgRollbackCounter(pair string) {
	metrics.IncrCounter([]string{relayerMetricsPrefix, "reorg_rollback_counter", pair}, 1)
}

func UpdateScanCursorGauge(pair string, height uint64) {
	metrics.SetGauge([]string{relayerMetricsPrefix, "scan_cursor", pair}, float32(height))
}
