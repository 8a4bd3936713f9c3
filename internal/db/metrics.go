package db

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenancePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_maintenance_passes_total",
			Help: "Total number of maintenance passes by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainreactor_maintenance_duration_seconds",
			Help:    "Duration of maintenance passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_maintenance_last_run_timestamp",
			Help: "Unix timestamp of the last maintenance pass",
		},
	)

	spaceReclaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreactor_maintenance_space_reclaimed_bytes",
			Help: "Bytes given back by the last maintenance pass",
		},
	)

	walCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreactor_wal_checkpoints_total",
			Help: "Total number of WAL checkpoints by mode",
		},
		[]string{"mode"},
	)

	vacuumRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chainreactor_vacuum_total",
			Help: "Total number of completed VACUUM operations",
		},
	)

	dbSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainreactor_db_size_bytes",
			Help: "On-disk database size in bytes",
		},
		[]string{"file"},
	)
)

// MaintenancePassObserved records the outcome of one maintenance pass.
func MaintenancePassObserved(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	maintenancePasses.WithLabelValues(status).Inc()
	maintenanceDuration.Observe(duration.Seconds())
	maintenanceLastRun.Set(float64(time.Now().UTC().Unix()))
}

// DBFootprintObserved publishes the on-disk size measured after a pass
// and any space the pass gave back.
func DBFootprintObserved(totalBytes, reclaimedBytes int64) {
	dbSize.WithLabelValues("total").Set(float64(totalBytes))

	if reclaimedBytes > 0 {
		spaceReclaimed.Set(float64(reclaimedBytes))
	}
}

// WALCheckpointObserved counts a completed WAL checkpoint under its mode.
func WALCheckpointObserved(mode string) {
	walCheckpoints.WithLabelValues(strings.ToLower(mode)).Inc()
}

// VacuumCompleted counts a VACUUM that ran to completion.
func VacuumCompleted() {
	vacuumRuns.Inc()
}
