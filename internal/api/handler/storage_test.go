package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetle/clinicd/internal/model"
)

type fakeMonitor struct {
	last       *model.StorageStatus
	checked    model.StorageStatus
	monitoring bool
	checkCalls int
}

func (f *fakeMonitor) LastStatus() *model.StorageStatus { return f.last }

func (f *fakeMonitor) Check(ctx context.Context) model.StorageStatus {
	f.checkCalls++
	return f.checked
}

func (f *fakeMonitor) IsMonitoring() bool { return f.monitoring }

func TestStorageStatus_BeforeFirstCheck(t *testing.T) {
	h := NewStorage(&fakeMonitor{monitoring: true})

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/storage/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Monitoring bool                 `json:"monitoring"`
		Status     *model.StorageStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Monitoring)
	assert.Nil(t, body.Status)
}

func TestStorageStatus_Cached(t *testing.T) {
	mon := &fakeMonitor{
		monitoring: true,
		last: &model.StorageStatus{
			NeedsBackup:       true,
			StorageUsageBytes: 450,
			StoragePercentage: 0.88,
			Level:             model.StorageLevelWarning,
			Timestamp:         time.Now(),
		},
	}
	h := NewStorage(mon)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/v1/storage/status", nil))

	var body struct {
		Status *model.StorageStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Status)
	assert.Equal(t, model.StorageLevelWarning, body.Status.Level)
	assert.True(t, body.Status.NeedsBackup)
	assert.Equal(t, 0, mon.checkCalls, "status query must not trigger a check")
}

func TestStorageCheck_Forced(t *testing.T) {
	mon := &fakeMonitor{
		checked: model.StorageStatus{
			StorageUsageBytes: 100,
			StoragePercentage: 0.2,
			Level:             model.StorageLevelNormal,
		},
	}
	h := NewStorage(mon)

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodPost, "/api/v1/storage/check", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mon.checkCalls)

	var body struct {
		Status *model.StorageStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Status)
	assert.Equal(t, model.StorageLevelNormal, body.Status.Level)
}
