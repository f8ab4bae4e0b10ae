package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mmynk/meetapp/internal/apperr"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError renders err as {"error": message}. Every client-facing error
// is a 400 except failed authentication, which is a 401.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)

	status := http.StatusBadRequest
	if appErr.Kind == apperr.KindUnauthorized {
		status = http.StatusUnauthorized
	}
	if appErr.Kind == apperr.KindUnexpected {
		slog.Error("Unexpected error", "method", r.Method, "path", r.URL.Path, "error", appErr.Err)
	}

	writeJSON(w, status, errorBody{Error: appErr.Message, Fields: appErr.Fields})
}

// decodeJSON reads the request body into v. An empty body leaves v zero.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperr.Validation(map[string]string{typeErr.Field: "has the wrong type"})
	}
	return apperr.Validation(map[string]string{"body": "must be valid JSON"})
}
