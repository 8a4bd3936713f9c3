package reorg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainreactor_reorg_depth_blocks",
			Help:    "Depth of handled blockchain reorganizations in blocks",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	reorgLastHandled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_reorg_last_handled_timestamp",
			Help: "Unix timestamp of the last handled reorganization",
		},
	)

	reorgReplaySkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_reorg_replay_skipped_total",
			Help: "Reorganizations whose new canonical branch was not replayed",
		},
	)
)

func reorgHandledLog(depth uint64) {
	reorgDepth.Observe(float64(depth))
	reorgLastHandled.Set(float64(time.Now().UTC().Unix()))
}

func replaySkippedLog() {
	reorgReplaySkipped.Inc()
}
