package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Retention deletes backup archives beyond a keep count, newest first by
// modification time. Matching BackupRecord rows are pruned alongside their
// files so the history listing never references a missing archive.
type Retention struct {
	logger  zerolog.Logger
	dir     string
	keep    int
	history HistoryStore // may be nil
}

func NewRetention(logger zerolog.Logger, dir string, keep int, history HistoryStore) *Retention {
	return &Retention{
		logger:  logger.With().Str("component", "retention").Logger(),
		dir:     dir,
		keep:    keep,
		history: history,
	}
}

type archiveFile struct {
	name    string
	path    string
	modTime time.Time
}

// Prune removes all but the keep newest backup archives. A missing backups
// directory is a no-op. Per-file delete failures are logged and do not stop
// the rest of the pass.
func (r *Retention) Prune(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read backups directory %s: %w", r.dir, err)
	}

	var archives []archiveFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "backup-") || !strings.HasSuffix(name, ".zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			r.logger.Warn().Err(err).Str("file", name).Msg("skipping unstatable backup file")
			continue
		}
		archives = append(archives, archiveFile{
			name:    name,
			path:    filepath.Join(r.dir, name),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].modTime.After(archives[j].modTime)
	})

	if len(archives) <= r.keep {
		return nil
	}

	deleted := 0
	for _, stale := range archives[r.keep:] {
		if err := os.Remove(stale.path); err != nil {
			r.logger.Error().Err(err).Str("file", stale.name).Msg("failed to delete old backup")
			continue
		}
		deleted++
		r.logger.Info().Str("file", stale.name).Msg("deleted old backup")

		if r.history != nil {
			if err := r.history.DeleteByPath(ctx, stale.path); err != nil {
				r.logger.Error().Err(err).Str("file", stale.name).Msg("failed to delete backup record")
			}
		}
	}

	if deleted > 0 {
		r.logger.Info().Int("deleted", deleted).Int("kept", r.keep).Msg("retention pass complete")
	}
	return nil
}
