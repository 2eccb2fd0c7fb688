package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vetle/clinicd/internal/api/middleware"
	"github.com/vetle/clinicd/internal/api/request"
	"github.com/vetle/clinicd/internal/api/response"
	"github.com/vetle/clinicd/internal/backup"
	"github.com/vetle/clinicd/internal/model"
)

// BackupService runs manual, role-scoped backup jobs.
type BackupService interface {
	RunManual(ctx context.Context, role model.Role, userID string) (*backup.ManualResult, error)
}

type Backup struct {
	logger  zerolog.Logger
	svc     BackupService
	history backup.HistoryStore // may be nil
}

func NewBackup(logger zerolog.Logger, svc BackupService, history backup.HistoryStore) *Backup {
	return &Backup{
		logger:  logger.With().Str("component", "backup-handler").Logger(),
		svc:     svc,
		history: history,
	}
}

// Trigger runs a backup scoped to the caller's role and streams the
// finished archive back as the response body.
func (h *Backup) Trigger(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		response.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req request.TriggerBackup
	if r.ContentLength > 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.svc.RunManual(r.Context(), session.Role, session.UserID)
	if err != nil {
		if errors.Is(err, backup.ErrRoleForbidden) {
			response.WriteError(w, http.StatusForbidden, "role not permitted to trigger backups")
			return
		}
		h.logger.Error().Err(err).Str("role", string(session.Role)).Msg("manual backup failed")
		response.WriteError(w, http.StatusInternalServerError, "backup failed")
		return
	}

	if req.Reason != "" {
		h.logger.Info().Str("reason", req.Reason).Str("archive", result.Filename).Msg("manual backup reason")
	}

	f, err := os.Open(result.Path)
	if err != nil {
		h.logger.Error().Err(err).Str("path", result.Path).Msg("failed to open finished archive")
		response.WriteError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(result.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Error().Err(err).Msg("archive download interrupted")
	}
}

// List returns the recorded manual backups, oldest first.
func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		response.WritePaginated(w, http.StatusOK, []model.BackupRecord{}, "", false)
		return
	}

	pg := request.ParsePagination(r)

	records, hasMore, err := h.history.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []model.BackupRecord{}
	}

	var nextCursor string
	if hasMore && len(records) > 0 {
		nextCursor = records[len(records)-1].ID.Hex()
	}
	response.WritePaginated(w, http.StatusOK, records, nextCursor, hasMore)
}
