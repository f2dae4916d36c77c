package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"

	"github.com/florianilch/marketdesk/internal/apiclient"
)

// Error codes returned to console clients.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeUpstreamFailure    = "UPSTREAM_UNAVAILABLE"
	CodeRejected           = "REQUEST_REJECTED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInternal           = "INTERNAL"
	defaultInternalMessage = "Internal server error"
)

// ErrorResponse is the body of every console error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeRaw passes an API payload through. An empty payload becomes 204.
func writeRaw(w http.ResponseWriter, payload json.RawMessage) {
	if len(payload) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	writeJSON(ctx, w, ErrorResponse{Code: code, Message: message}, status)
}

// writeAPIError maps a failed API call to a console response by its kind alone.
func writeAPIError(ctx context.Context, w http.ResponseWriter, err error) {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		slog.ErrorContext(ctx, "unclassified error", "error", err)
		writeJSONError(ctx, w, CodeInternal, defaultInternalMessage, http.StatusInternalServerError)
		return
	}

	httplog.SetAttrs(ctx, slog.String("error.kind", apiErr.Kind.String()))

	code, status := statusFor(apiErr.Kind)
	writeJSONError(ctx, w, code, apiErr.Message, status)
}

func statusFor(kind apiclient.Kind) (string, int) {
	switch kind {
	case apiclient.KindUnauthorized:
		return CodeUnauthorized, http.StatusUnauthorized
	case apiclient.KindForbidden:
		return CodeForbidden, http.StatusForbidden
	case apiclient.KindTransportFailure:
		return CodeUpstreamFailure, http.StatusBadGateway
	case apiclient.KindServerRejected:
		return CodeRejected, http.StatusUnprocessableEntity
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}
