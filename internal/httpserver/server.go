// Package httpserver exposes the HTTP surfaces of the Geo-NAP services.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/apperr"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// newRouter builds the base router shared by every service. Routes registered through
// the returned group get the request timeout; long-lived routes go on the root.
func newRouter(service string, db Pinger, logger *zap.Logger) (*chi.Mux, chi.Router) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, logger, apperr.NotFound(fmt.Sprintf("Route not found: %s %s", req.Method, req.URL.RequestURI())))
	})

	var timed chi.Router
	r.Group(func(g chi.Router) {
		g.Use(middleware.Timeout(30 * time.Second))
		g.Get("/health", healthHandler(service, db))
		timed = g
	})
	return r, timed
}

// Health serves only /health, for processes with no other HTTP surface.
func Health(service string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r, _ := newRouter(service, nil, logger)
	return r
}

func healthHandler(service string, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"ok":      true,
			"service": service,
			"time":    time.Now().UTC().Format(time.RFC3339Nano),
		}
		if db == nil {
			respondJSON(w, http.StatusOK, status)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			status["ok"] = false
			status["db"] = "down"
			status["error"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["db"] = "up"
		respondJSON(w, http.StatusOK, status)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("Request body too large", nil)
		}
		return nil, apperr.Validation("Unable to read request body", nil)
	}
	return body, nil
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// respondJSON encodes payload before writing the header, so a payload that cannot be
// encoded becomes a 500 instead of an empty success.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorBody{Error: errorDetail{Code: apperr.CodeInternal, Message: "Unable to encode response"}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// respondError writes err in the shared error envelope. Anything that is not an
// *apperr.Error is reported as an internal error.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", appErr.Code), zap.Error(err))
	}
	respondJSON(w, appErr.Status, errorBody{Error: errorDetail{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}
