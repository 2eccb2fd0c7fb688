package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/vetle/clinicd/internal/api/handler"
	"github.com/vetle/clinicd/internal/backup"
	"github.com/vetle/clinicd/internal/db"
	"github.com/vetle/clinicd/internal/model"
)

type stubSessions struct {
	sessions map[string]*model.Session
}

func (s *stubSessions) Lookup(ctx context.Context, token string) (*model.Session, error) {
	if sess, ok := s.sessions[token]; ok {
		return sess, nil
	}
	return nil, db.ErrNoSession
}

type stubBackupService struct {
	calls int
}

func (s *stubBackupService) RunManual(ctx context.Context, role model.Role, userID string) (*backup.ManualResult, error) {
	s.calls++
	return nil, errors.New("not under test")
}

type stubMonitor struct{}

func (stubMonitor) LastStatus() *model.StorageStatus { return nil }

func (stubMonitor) Check(ctx context.Context) model.StorageStatus {
	return model.StorageStatus{}
}

func (stubMonitor) IsMonitoring() bool { return true }

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(svc *stubBackupService, pinger *stubPinger) *Server {
	sessions := &stubSessions{sessions: map[string]*model.Session{
		"doctor-token": {UserID: "u-1", Role: model.RoleDoctor},
	}}
	return NewServer(
		zerolog.Nop(),
		sessions,
		handler.NewBackup(zerolog.Nop(), svc, nil),
		handler.NewStorage(stubMonitor{}),
		pinger,
	)
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(&stubBackupService{}, &stubPinger{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_ReadyzDegraded(t *testing.T) {
	s := newTestServer(&stubBackupService{}, &stubPinger{err: errors.New("no reachable servers")})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no reachable servers")
}

func TestServer_UnauthenticatedBackupStartsNoJob(t *testing.T) {
	svc := &stubBackupService{}
	s := newTestServer(svc, &stubPinger{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backups", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestServer_AuthenticatedRouteReachesHandler(t *testing.T) {
	svc := &stubBackupService{}
	s := newTestServer(svc, &stubPinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backups", nil)
	req.Header.Set("X-Session-Token", "doctor-token")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, svc.calls)
}

func TestServer_StorageStatusRequiresAuth(t *testing.T) {
	s := newTestServer(&stubBackupService{}, &stubPinger{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/storage/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/storage/status", nil)
	req.Header.Set("X-Session-Token", "doctor-token")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"monitoring":true`)
}

func TestServer_MetricsExposed(t *testing.T) {
	s := newTestServer(&stubBackupService{}, &stubPinger{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
