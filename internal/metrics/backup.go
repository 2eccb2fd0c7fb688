package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_backups_total",
		Help: "Completed backup jobs by mode and outcome",
	}, []string{"mode", "outcome"})

	backupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinic_backup_duration_seconds",
		Help:    "Backup job duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"mode"})
)

// ObserveBackup records a finished backup job.
func ObserveBackup(mode string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	backupsTotal.WithLabelValues(mode, outcome).Inc()
	backupDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
