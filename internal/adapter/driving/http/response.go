package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/tokenkeeper/internal/application"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
	Store  string `json:"store"`
}

// CredentialStatusResponse is the secret-free view of an environment's
// current credentials.
type CredentialStatusResponse struct {
	Environment string `json:"environment"`
	Present     bool   `json:"present"`
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason"`
	StoredAt    string `json:"stored_at,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Versions    int    `json:"versions"`
}

// StoreCredentialsRequest is the JSON body for PUT /api/v1/credentials/{env}.
type StoreCredentialsRequest struct {
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
	ExpiresAt         string `json:"expires_at,omitempty"`
}

// KeepAliveResponse is the JSON representation of the keep-alive loop state.
type KeepAliveResponse struct {
	Running   bool   `json:"running"`
	LastRunAt string `json:"last_run_at,omitempty"`
	Interval  string `json:"interval"`
}

// toCredentialStatusResponse converts an application CredentialStatus to JSON.
func toCredentialStatusResponse(s application.CredentialStatus) CredentialStatusResponse {
	return CredentialStatusResponse{
		Environment: string(s.Environment),
		Present:     s.Present,
		Valid:       s.Valid,
		Reason:      string(s.Reason),
		StoredAt:    s.StoredAt,
		ExpiresAt:   s.ExpiresAt,
		Versions:    s.Versions,
	}
}

// toKeepAliveResponse converts a domain KeepAliveStatus to JSON.
func toKeepAliveResponse(s model.KeepAliveStatus) KeepAliveResponse {
	resp := KeepAliveResponse{
		Running:  s.Running,
		Interval: s.Interval.String(),
	}
	if !s.LastRunAt.IsZero() {
		resp.LastRunAt = s.LastRunAt.UTC().Format(time.RFC3339)
	}
	return resp
}
