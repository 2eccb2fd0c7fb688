package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetle/clinicd/internal/model"
)

// Classification thresholds, expressed as a fraction of the configured
// storage ceiling.
const (
	WarningThreshold  = 0.8
	CriticalThreshold = 0.95
)

const (
	// DefaultInterval is the monitoring cadence when none is given.
	DefaultInterval = 30 * time.Minute

	defaultCooldown     = 5 * time.Minute
	defaultWarmupDelay  = 5 * time.Second
	defaultRecheckDelay = 10 * time.Second
)

// StatsFunc returns the database's current storage size in bytes.
type StatsFunc func(ctx context.Context) (int64, error)

// BackupFunc runs an automatic full backup.
type BackupFunc func(ctx context.Context) error

// Listener observes new storage statuses.
type Listener func(model.StorageStatus)

// Config holds the monitor's tunables. Zero durations get defaults.
type Config struct {
	MaxBytes     int64
	Cooldown     time.Duration
	WarmupDelay  time.Duration
	RecheckDelay time.Duration
}

// Monitor periodically samples database storage usage, classifies it
// against the configured ceiling, and triggers an automatic backup when
// usage turns critical. There is one Monitor per process; Start is
// idempotent and Stop is safe to call when not running.
type Monitor struct {
	logger  zerolog.Logger
	cfg     Config
	statsFn StatsFunc
	backupF BackupFunc

	// checkMu serializes checks so concurrent on-demand calls cannot
	// race the ticker into duplicate stats queries.
	checkMu sync.Mutex

	mu         sync.Mutex
	running    bool
	stop       chan struct{}
	lastStatus *model.StorageStatus
	lastCheck  time.Time
	listeners  []registeredListener
	nextID     int
}

type registeredListener struct {
	id int
	fn Listener
}

// NewMonitor creates a storage monitor. statsFn and backupFn must be
// non-nil.
func NewMonitor(logger zerolog.Logger, cfg Config, statsFn StatsFunc, backupFn BackupFunc) *Monitor {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = defaultWarmupDelay
	}
	if cfg.RecheckDelay <= 0 {
		cfg.RecheckDelay = defaultRecheckDelay
	}
	return &Monitor{
		logger:  logger.With().Str("component", "storage-monitor").Logger(),
		cfg:     cfg,
		statsFn: statsFn,
		backupF: backupFn,
	}
}

// Start begins periodic checks every interval, plus one initial check after
// a short warm-up delay. Calling Start while running is a no-op.
func (m *Monitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Info().Msg("storage monitoring already running")
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	go m.loop(interval, stop)

	m.logger.Info().Dur("interval", interval).Msg("storage monitoring started")
}

// Stop cancels the periodic checks. Safe to call when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stop)
	m.stop = nil
	m.running = false
	m.logger.Info().Msg("storage monitoring stopped")
}

// IsMonitoring reports whether the periodic check loop is active.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastStatus returns the most recent status without triggering a check, or
// nil if no check has run yet.
func (m *Monitor) LastStatus() *model.StorageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastStatus == nil {
		return nil
	}
	status := *m.lastStatus
	return &status
}

// AddListener registers a status observer and returns its id for removal.
// Listeners run synchronously on each fresh check; a panicking listener is
// contained and does not affect the others.
func (m *Monitor) AddListener(fn Listener) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.listeners = append(m.listeners, registeredListener{id: m.nextID, fn: fn})
	return m.nextID
}

// RemoveListener unregisters the listener with the given id.
func (m *Monitor) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.listeners {
		if l.id == id {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *Monitor) loop(interval time.Duration, stop chan struct{}) {
	warmup := time.NewTimer(m.cfg.WarmupDelay)
	defer warmup.Stop()

	select {
	case <-warmup.C:
		m.Check(context.Background())
	case <-stop:
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(context.Background())
		case <-stop:
			return
		}
	}
}

// Check samples storage usage and returns the resulting status. Calls
// within the cooldown window of the previous successful check return the
// cached status without querying the database. Check never returns an
// error: a failed stats query yields a degraded status instead.
func (m *Monitor) Check(ctx context.Context) model.StorageStatus {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	m.mu.Lock()
	if m.lastStatus != nil && time.Since(m.lastCheck) < m.cfg.Cooldown {
		cached := *m.lastStatus
		m.mu.Unlock()
		return cached
	}
	m.mu.Unlock()

	m.logger.Debug().Msg("checking database storage usage")

	usage, err := m.statsFn(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("storage monitoring failed")
		status := model.StorageStatus{
			NeedsBackup: false,
			Level:       model.StorageLevelError,
			Message:     fmt.Sprintf("storage monitoring error: %v", err),
			Timestamp:   time.Now(),
		}
		m.mu.Lock()
		m.lastStatus = &status
		m.mu.Unlock()
		return status
	}

	status := m.classify(usage)

	m.mu.Lock()
	m.lastStatus = &status
	m.lastCheck = time.Now()
	listeners := make([]registeredListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	m.logger.Info().
		Int64("usage_bytes", status.StorageUsageBytes).
		Float64("percentage", status.StoragePercentage).
		Str("level", status.Level).
		Msg("storage check complete")

	for _, l := range listeners {
		m.notify(l, status)
	}

	if status.Level == model.StorageLevelCritical {
		m.logger.Warn().Msg("critical storage level reached, triggering automatic backup")
		if err := m.backupF(ctx); err != nil {
			m.logger.Error().Err(err).Msg("automatic backup failed")
		} else {
			// Confirm the backup relieved pressure; observational only.
			time.AfterFunc(m.cfg.RecheckDelay, func() {
				m.Check(context.Background())
			})
		}
	}

	return status
}

func (m *Monitor) classify(usage int64) model.StorageStatus {
	pct := float64(usage) / float64(m.cfg.MaxBytes)

	status := model.StorageStatus{
		StorageUsageBytes: usage,
		StoragePercentage: pct,
		Level:             model.StorageLevelNormal,
		Message:           "storage usage normal",
		Timestamp:         time.Now(),
	}

	switch {
	case pct >= CriticalThreshold:
		status.NeedsBackup = true
		status.Level = model.StorageLevelCritical
		status.Message = fmt.Sprintf("CRITICAL: storage usage at %.1f%%, backup required immediately", pct*100)
	case pct >= WarningThreshold:
		status.NeedsBackup = true
		status.Level = model.StorageLevelWarning
		status.Message = fmt.Sprintf("WARNING: storage usage at %.1f%%, consider backup soon", pct*100)
	}

	return status
}

func (m *Monitor) notify(l registeredListener, status model.StorageStatus) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Int("listener", l.id).Interface("panic", r).Msg("storage listener panicked")
		}
	}()
	l.fn(status)
}
