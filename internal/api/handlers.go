package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"clonebot/internal/auth"
	"clonebot/internal/manager"
	"clonebot/internal/metrics"
)

// HealthRouter serves the liveness endpoint hosting platforms probe.
func (a *API) HealthRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", a.Health)
	r.Get("/kaithheathcheck", a.Health)
	r.Get("/", a.Status)
	return r
}

// AdminRouter serves metrics and the operator API.
func (a *API) AdminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public
	r.Handle("/metrics", metrics.Handler())

	// Secured
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.JWTAuthMiddleware)

		r.Get("/stats", a.GetStats)
		r.Get("/tenants", a.ListTenants)
		r.Post("/admissions", a.CreateAdmission)
		r.Post("/reconcile", a.RunReconcile)
	})

	return r
}

// @Summary Liveness probe
// @Tags Health
// @Produce plain
// @Success 200 {string} string "OK"
// @Router /health [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// @Summary Service status
// @Tags Health
// @Produce plain
// @Success 200 {string} string
// @Router / [get]
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("clonebot is running"))
}

// @Summary Directory statistics
// @Tags Operators
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} manager.Stats
// @Router /api/stats [get]
func (a *API) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.TenantMgr.Stats(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// @Summary List registered tenants
// @Tags Operators
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {array} model.Tenant
// @Router /api/tenants [get]
func (a *API) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := a.TenantMgr.Tenants(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": tenants})
}

// AdmissionRequest is the body of POST /api/admissions.
type AdmissionRequest struct {
	Text string `json:"text"`
}

// @Summary Admit a bot token on behalf of the operator
// @Tags Operators
// @Security ApiKeyAuth
// @Param body body AdmissionRequest true "Text containing a bot token"
// @Produce json
// @Success 201 {object} map[string]string
// @Router /api/admissions [post]
func (a *API) CreateAdmission(w http.ResponseWriter, r *http.Request) {
	var body AdmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	operatorID, _ := auth.GetOperatorID(r)

	res := a.TenantMgr.Admit(r.Context(), body.Text, operatorID)
	if res.Err != nil {
		a.logger.Warn("admission via api", zap.String("outcome", res.Outcome.String()), zap.Error(res.Err))
	}

	resp := map[string]string{"outcome": res.Outcome.String()}
	if res.Handle != "" {
		resp["handle"] = res.Handle
	}
	writeJSON(w, admissionStatus(res.Outcome), resp)
}

func admissionStatus(o manager.Outcome) int {
	switch o {
	case manager.Started:
		return http.StatusCreated
	case manager.NoCredentialFound:
		return http.StatusUnprocessableEntity
	case manager.AlreadyRunning:
		return http.StatusConflict
	case manager.DirectoryUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// @Summary Release running sessions unknown to the directory
// @Tags Operators
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/reconcile [post]
func (a *API) RunReconcile(w http.ResponseWriter, r *http.Request) {
	n, err := a.TenantMgr.Reconcile(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": n})
}

func (a *API) fail(w http.ResponseWriter, err error) {
	a.logger.Error("request failed", zap.Error(err))
	if errors.Is(err, manager.ErrDirectoryUnavailable) {
		http.Error(w, "tenant directory unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
