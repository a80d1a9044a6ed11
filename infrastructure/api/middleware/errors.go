package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vectorhaus/kbvec/infrastructure/provider"
	"github.com/vectorhaus/kbvec/internal/database"
)

// ErrorObject is one JSON error in a response.
type ErrorObject struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	ID     string `json:"id,omitempty"`
}

// ErrorResponse is the JSON error response wrapper.
type ErrorResponse struct {
	Errors []ErrorObject `json:"errors"`
}

// WriteError writes a JSON error response with a status code derived from
// the error's classification.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status := http.StatusInternalServerError
	title := "Internal Server Error"

	switch {
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
		title = "Not Found"
	default:
		switch provider.KindOf(err) {
		case provider.KindValidation:
			status = http.StatusBadRequest
			title = "Validation Error"
		case provider.KindCredential:
			status = http.StatusUnauthorized
			title = "Credential Error"
		case provider.KindTransient:
			status = http.StatusServiceUnavailable
			title = "Provider Unavailable"
		case provider.KindUnavailable:
			status = http.StatusServiceUnavailable
			title = "Service Unavailable"
		case provider.KindStorage:
			title = "Storage Error"
		}
	}

	requestID := chimiddleware.GetReqID(r.Context())
	if logger != nil {
		logger.Error("request error",
			slog.String("request_id", requestID),
			slog.Int("status", status),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	WriteJSON(w, status, ErrorResponse{
		Errors: []ErrorObject{{
			Status: http.StatusText(status),
			Title:  title,
			Detail: err.Error(),
			ID:     requestID,
		}},
	})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
