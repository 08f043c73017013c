package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clonebot/internal/auth"
	"clonebot/internal/config"
	"clonebot/internal/manager"
	"clonebot/internal/model"
)

type stubManager struct {
	result    manager.Result
	stats     manager.Stats
	tenants   []model.Tenant
	released  int
	err       error
	admitText string
	admitUser int64
}

func (s *stubManager) Admit(ctx context.Context, text string, userID int64) manager.Result {
	s.admitText, s.admitUser = text, userID
	return s.result
}

func (s *stubManager) Stats(ctx context.Context) (manager.Stats, error) { return s.stats, s.err }

func (s *stubManager) Tenants(ctx context.Context) ([]model.Tenant, error) { return s.tenants, s.err }

func (s *stubManager) Reconcile(ctx context.Context) (int, error) { return s.released, s.err }

func newTestAPI(m *stubManager) *API {
	return NewAPI(m, config.Default(), zap.NewNop())
}

func bearer(t *testing.T) string {
	t.Helper()
	auth.SetSecret("api-test")
	tok, err := auth.GenerateToken(5, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(h http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthRouter(t *testing.T) {
	h := newTestAPI(&stubManager{}).HealthRouter()

	rec := do(h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(h, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())

	rec = do(h, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminAPIRequiresToken(t *testing.T) {
	h := newTestAPI(&stubManager{}).AdminRouter()

	for _, path := range []string{"/api/stats", "/api/tenants"} {
		rec := do(h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminMetricsPublic(t *testing.T) {
	h := newTestAPI(&stubManager{}).AdminRouter()

	rec := do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetStats(t *testing.T) {
	m := &stubManager{stats: manager.Stats{Users: 2, Bots: []string{"@b1"}, Running: 1}}
	h := newTestAPI(m).AdminRouter()

	rec := do(h, http.MethodGet, "/api/stats", bearer(t), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got manager.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, m.stats, got)
}

func TestGetStatsDirectoryDown(t *testing.T) {
	m := &stubManager{err: fmt.Errorf("%w: boom", manager.ErrDirectoryUnavailable)}
	h := newTestAPI(m).AdminRouter()

	rec := do(h, http.MethodGet, "/api/stats", bearer(t), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	m.err = errors.New("other")
	rec = do(h, http.MethodGet, "/api/tenants", bearer(t), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListTenantsHidesToken(t *testing.T) {
	m := &stubManager{tenants: []model.Tenant{{Token: "1:secret", Handle: "@b1"}}}
	h := newTestAPI(m).AdminRouter()

	rec := do(h, http.MethodGet, "/api/tenants", bearer(t), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "@b1")
	assert.NotContains(t, rec.Body.String(), "1:secret")
}

func TestCreateAdmission(t *testing.T) {
	tests := []struct {
		outcome manager.Outcome
		status  int
	}{
		{manager.Started, http.StatusCreated},
		{manager.NoCredentialFound, http.StatusUnprocessableEntity},
		{manager.AlreadyRunning, http.StatusConflict},
		{manager.Failed, http.StatusBadGateway},
		{manager.DirectoryUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			m := &stubManager{result: manager.Result{Outcome: tt.outcome, Handle: "@b1"}}
			h := newTestAPI(m).AdminRouter()

			rec := do(h, http.MethodPost, "/api/admissions", bearer(t), `{"text":"1:abc"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.outcome.String())
			assert.Equal(t, "1:abc", m.admitText)
			assert.Equal(t, int64(5), m.admitUser)
		})
	}
}

func TestCreateAdmissionBadBody(t *testing.T) {
	h := newTestAPI(&stubManager{}).AdminRouter()

	rec := do(h, http.MethodPost, "/api/admissions", bearer(t), "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunReconcile(t *testing.T) {
	h := newTestAPI(&stubManager{released: 3}).AdminRouter()

	rec := do(h, http.MethodPost, "/api/reconcile", bearer(t), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"released":3}`, rec.Body.String())
}
