package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vetle/clinicd/internal/model"
)

var (
	storageUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinic_storage_usage_bytes",
		Help: "Database storage usage from the last check",
	})

	storageUsageRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinic_storage_usage_ratio",
		Help: "Database storage usage as a fraction of the configured ceiling",
	})

	storageNeedsBackup = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinic_storage_needs_backup",
		Help: "1 when the last check classified usage as warning or critical",
	})

	storageChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_storage_checks_total",
		Help: "Storage checks by resulting level",
	}, []string{"level"})
)

// ObserveStorageStatus records a fresh storage check. It satisfies the
// monitor's listener signature.
func ObserveStorageStatus(status model.StorageStatus) {
	storageUsageBytes.Set(float64(status.StorageUsageBytes))
	storageUsageRatio.Set(status.StoragePercentage)
	if status.NeedsBackup {
		storageNeedsBackup.Set(1)
	} else {
		storageNeedsBackup.Set(0)
	}
	storageChecksTotal.WithLabelValues(status.Level).Inc()
}
