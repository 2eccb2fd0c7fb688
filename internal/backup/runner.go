package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetle/clinicd/internal/metrics"
	"github.com/vetle/clinicd/internal/model"
)

// RunnerConfig holds the filesystem layout for backup jobs.
type RunnerConfig struct {
	BackupsDir string
	TempDir    string
}

// Runner orchestrates backup jobs: dump each allowed collection into a
// timestamp-scoped temp directory, compress it into a single archive, and
// clean the temp directory up on every exit path. Collections are dumped
// sequentially so peak memory stays bounded to one in-flight dump.
type Runner struct {
	logger   zerolog.Logger
	cfg      RunnerConfig
	db       Database
	dumper   *Dumper
	scope    *Scope
	history  HistoryStore // may be nil
	retain   *Retention   // may be nil
	uploader *Uploader    // may be nil
}

func NewRunner(logger zerolog.Logger, cfg RunnerConfig, db Database, scope *Scope, history HistoryStore, retain *Retention, uploader *Uploader) *Runner {
	return &Runner{
		logger:   logger.With().Str("component", "backup-runner").Logger(),
		cfg:      cfg,
		db:       db,
		dumper:   NewDumper(logger),
		scope:    scope,
		history:  history,
		retain:   retain,
		uploader: uploader,
	}
}

// ManualResult describes a finished manual backup.
type ManualResult struct {
	Filename  string
	Path      string
	SizeBytes int64
	Record    *model.BackupRecord
}

// RunAutomatic backs up every collection in the database. It is the
// critical-storage path: system-triggered, full administrative scope. A
// retention pass and optional offsite copy follow a successful archive.
func (r *Runner) RunAutomatic(ctx context.Context) error {
	start := time.Now()
	r.logger.Info().Msg("starting automatic backup")

	collections, err := r.db.CollectionNames(ctx)
	if err != nil {
		return fmt.Errorf("automatic backup: list collections: %w", err)
	}

	ts := archiveTimestamp(start)
	archivePath := filepath.Join(r.cfg.BackupsDir, fmt.Sprintf("backup-%s.zip", ts))

	size, err := r.runJob(ctx, collections, ts, archivePath)
	metrics.ObserveBackup("automatic", start, err)
	if err != nil {
		return fmt.Errorf("automatic backup: %w", err)
	}

	r.logger.Info().
		Str("archive", archivePath).
		Int64("size_bytes", size).
		Dur("duration", time.Since(start)).
		Msg("automatic backup complete")

	if r.uploader != nil {
		if err := r.uploader.Upload(ctx, archivePath); err != nil {
			r.logger.Error().Err(err).Msg("offsite upload failed")
		}
	}

	if r.retain != nil {
		if err := r.retain.Prune(ctx); err != nil {
			r.logger.Error().Err(err).Msg("retention pass failed")
		}
	}

	return nil
}

// RunManual backs up the collections the role is allowed to export and
// records a BackupRecord after the archive is finalized. Any failure
// propagates to the caller; there is no partial-success result.
func (r *Runner) RunManual(ctx context.Context, role model.Role, userID string) (*ManualResult, error) {
	if !role.CanTriggerBackup() {
		return nil, ErrRoleForbidden
	}

	start := time.Now()
	r.logger.Info().Str("role", string(role)).Str("user", userID).Msg("starting manual backup")

	collections, err := r.scope.CollectionsFor(ctx, r.db, role)
	if err != nil {
		return nil, fmt.Errorf("manual backup: %w", err)
	}

	ts := archiveTimestamp(start)
	filename := fmt.Sprintf("backup-%s-%s.zip", role, ts)
	archivePath := filepath.Join(r.cfg.BackupsDir, filename)

	size, err := r.runJob(ctx, collections, ts, archivePath)
	metrics.ObserveBackup("manual", start, err)
	if err != nil {
		return nil, fmt.Errorf("manual backup: %w", err)
	}

	record := &model.BackupRecord{
		Filename:    filename,
		Path:        archivePath,
		Role:        role,
		SizeBytes:   size,
		TriggeredBy: userID,
		BackupDate:  start,
	}
	if r.history != nil {
		if err := r.history.Insert(ctx, record); err != nil {
			return nil, fmt.Errorf("manual backup: %w", err)
		}
	}

	r.logger.Info().
		Str("archive", archivePath).
		Int64("size_bytes", size).
		Dur("duration", time.Since(start)).
		Msg("manual backup complete")

	if r.uploader != nil {
		if err := r.uploader.Upload(ctx, archivePath); err != nil {
			r.logger.Error().Err(err).Msg("offsite upload failed")
		}
	}

	return &ManualResult{
		Filename:  filename,
		Path:      archivePath,
		SizeBytes: size,
		Record:    record,
	}, nil
}

// runJob dumps the collections into a fresh temp directory and compresses
// it to archivePath. The temp directory is removed whether or not the job
// succeeds.
func (r *Runner) runJob(ctx context.Context, collections []string, ts, archivePath string) (int64, error) {
	workDir := filepath.Join(r.cfg.TempDir, fmt.Sprintf("%s-%s", ts, uuid.NewString()[:8]))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0, fmt.Errorf("create temp directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			r.logger.Error().Err(err).Str("dir", workDir).Msg("failed to remove temp directory")
		}
	}()

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return 0, fmt.Errorf("create backups directory: %w", err)
	}

	r.logger.Info().Int("collections", len(collections)).Msg("dumping collections")

	for _, name := range collections {
		cur, err := r.db.Find(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("open cursor for %s: %w", name, err)
		}
		if _, err := r.dumper.DumpCollection(ctx, cur, workDir, name); err != nil {
			return 0, err
		}
	}

	size, err := BuildArchive(workDir, archivePath)
	if err != nil {
		return 0, err
	}
	return size, nil
}

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// archiveTimestamp renders t as an ISO-8601 instant with characters illegal
// in filenames replaced.
func archiveTimestamp(t time.Time) string {
	return timestampReplacer.Replace(t.UTC().Format(time.RFC3339))
}
