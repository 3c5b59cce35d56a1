package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/tokenkeeper/internal/application"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/tokenkeeper/internal/observability/metrics"
)

// healthTimeout bounds the store ping behind GET /api/v1/health.
const healthTimeout = 2 * time.Second

// Pinger is implemented by store backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	credSvc   *application.CredentialService
	alertSvc  *application.AlertService
	keepAlive *application.KeepAliveService
	pinger    Pinger
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. pinger may be
// nil, in which case health does not probe the store.
func NewHandler(
	credSvc *application.CredentialService,
	alertSvc *application.AlertService,
	keepAlive *application.KeepAliveService,
	pinger Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		credSvc:   credSvc,
		alertSvc:  alertSvc,
		keepAlive: keepAlive,
		pinger:    pinger,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request-id, logging, and recovery middleware. /metrics is served
// from m's registry when m is non-nil.
func NewServeMux(h *Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	mux.HandleFunc("GET /api/v1/credentials/{env}", h.GetCredentials)
	mux.HandleFunc("PUT /api/v1/credentials/{env}", h.StoreCredentials)
	mux.HandleFunc("DELETE /api/v1/credentials/{env}", h.DeleteCredentials)
	mux.HandleFunc("POST /api/v1/alerts/check", h.RunAlertChecks)
	mux.HandleFunc("GET /api/v1/keepalive", h.KeepAliveStatus)

	if reg := m.Registry(); reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health reports liveness and, when a pinger is configured, store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
		Store:  "unchecked",
	}

	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("store ping failed", "error", err)
			resp.Status = "degraded"
			resp.Store = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Store = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListCredentials returns the status of every stored environment.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.credSvc.ListStatuses(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to list credentials", err)
		return
	}

	resp := make([]CredentialStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		resp = append(resp, toCredentialStatusResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCredentials returns the validity of one environment's credentials.
func (h *Handler) GetCredentials(w http.ResponseWriter, r *http.Request) {
	env, ok := pathEnvironment(w, r)
	if !ok {
		return
	}

	status, err := h.credSvc.Status(r.Context(), env)
	if err != nil {
		h.writeServiceError(w, "failed to load credentials", err)
		return
	}

	writeJSON(w, http.StatusOK, toCredentialStatusResponse(status))
}

// StoreCredentials appends a renewed credential set for an environment.
func (h *Handler) StoreCredentials(w http.ResponseWriter, r *http.Request) {
	env, ok := pathEnvironment(w, r)
	if !ok {
		return
	}

	var req StoreCredentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var expiresAt time.Time
	if req.ExpiresAt != "" {
		parsed, err := model.ParseTimestamp(req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_at must be an ISO-8601 timestamp")
			return
		}
		expiresAt = parsed
	}

	if err := h.credSvc.Store(r.Context(), env, req.AccessToken, req.AccessTokenSecret, expiresAt); err != nil {
		h.writeServiceError(w, "failed to store credentials", err)
		return
	}

	status, err := h.credSvc.Status(r.Context(), env)
	if err != nil {
		h.writeServiceError(w, "failed to load stored credentials", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCredentialStatusResponse(status))
}

// DeleteCredentials removes an environment's credentials and all versions.
func (h *Handler) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	env, ok := pathEnvironment(w, r)
	if !ok {
		return
	}

	if err := h.credSvc.Delete(r.Context(), env); err != nil {
		h.writeServiceError(w, "failed to delete credentials", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RunAlertChecks evaluates both alert triggers now and returns the report.
func (h *Handler) RunAlertChecks(w http.ResponseWriter, r *http.Request) {
	report := h.alertSvc.RunAlertChecks(r.Context())
	writeJSON(w, http.StatusOK, report)
}

// KeepAliveStatus returns the keep-alive loop state.
func (h *Handler) KeepAliveStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toKeepAliveResponse(h.keepAlive.Status()))
}

// writeServiceError maps port sentinel errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, driven.ErrUnknownEnvironment):
		writeError(w, http.StatusNotFound, "unknown environment")
	case errors.Is(err, driven.ErrInvalidCredentials):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, driven.ErrStoreUnavailable):
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusServiceUnavailable, "credential store unavailable")
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathEnvironment parses {env}, writing a 404 when it is not a known environment.
func pathEnvironment(w http.ResponseWriter, r *http.Request) (model.Environment, bool) {
	env, err := model.ParseEnvironment(r.PathValue("env"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown environment")
		return "", false
	}
	return env, true
}
