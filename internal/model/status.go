package model

import "time"

// Storage classification levels reported by the monitor.
const (
	StorageLevelNormal   = "normal"
	StorageLevelWarning  = "warning"
	StorageLevelCritical = "critical"
	StorageLevelError    = "error"
)

// StorageStatus is the result of one storage check. It is recomputed on
// every (non-throttled) check and cached in process memory; it is never
// persisted.
type StorageStatus struct {
	NeedsBackup       bool      `json:"needs_backup"`
	StorageUsageBytes int64     `json:"storage_usage_bytes"`
	StoragePercentage float64   `json:"storage_percentage"`
	Level             string    `json:"level"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
}
