package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jmgilman/go/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error *errors.ErrorResponse `json:"error"`
}

func errorBody(err error) errResponse {
	return errResponse{Error: errors.ToJSON(err)}
}

// writeError maps the error code to an HTTP status
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(errors.GetCode(err))
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(err))
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeAlreadyExists, errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeInvalidInput, errors.CodeInvalidConfig:
		return http.StatusBadRequest
	case errors.CodeNotImplemented:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "invalid JSON body")
	}
	return nil
}
