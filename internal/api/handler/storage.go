package handler

import (
	"context"
	"net/http"

	"github.com/vetle/clinicd/internal/api/response"
	"github.com/vetle/clinicd/internal/model"
)

// StorageMonitor exposes the running monitor's status to the API.
type StorageMonitor interface {
	LastStatus() *model.StorageStatus
	Check(ctx context.Context) model.StorageStatus
	IsMonitoring() bool
}

type Storage struct {
	monitor StorageMonitor
}

func NewStorage(monitor StorageMonitor) *Storage {
	return &Storage{monitor: monitor}
}

type storageStatusResponse struct {
	Monitoring bool                 `json:"monitoring"`
	Status     *model.StorageStatus `json:"status"`
}

// Status returns the cached storage status without touching the database.
// Status is null until the first check has run.
func (h *Storage) Status(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, storageStatusResponse{
		Monitoring: h.monitor.IsMonitoring(),
		Status:     h.monitor.LastStatus(),
	})
}

// Check forces a storage check now, subject to the monitor's cooldown, and
// returns the resulting status.
func (h *Storage) Check(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Check(r.Context())
	response.WriteJSON(w, http.StatusOK, storageStatusResponse{
		Monitoring: h.monitor.IsMonitoring(),
		Status:     &status,
	})
}
