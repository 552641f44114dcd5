package httpapi

import (
    "errors"
    "net/http"

    jsoniter "github.com/json-iterator/go"

    "bgstream/internal/domain"
    "bgstream/internal/usecase"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type apiErrorBody struct {
    Error apiError `json:"error"`
}

type apiError struct {
    Code    string      `json:"code"`
    Message string      `json:"message"`
    Details interface{} `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, message string, details interface{}) {
    if code == "" { code = http.StatusText(status) }
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(apiErrorBody{Error: apiError{Code: code, Message: message, Details: details}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps sentinel errors to status codes; anything else is a 500 with fallback code.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
    switch {
    case errors.Is(err, domain.ErrNotFound):
        writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
    case errors.Is(err, domain.ErrNotConnected):
        writeError(w, http.StatusConflict, "NOT_CONNECTED", err.Error(), nil)
    case errors.Is(err, domain.ErrNotStreaming):
        writeError(w, http.StatusConflict, "NOT_STREAMING", err.Error(), nil)
    case errors.Is(err, domain.ErrSurfaceNotReady):
        writeError(w, http.StatusConflict, "SURFACE_NOT_READY", err.Error(), nil)
    case errors.Is(err, domain.ErrRecordingActive):
        writeError(w, http.StatusConflict, "RECORDING_ACTIVE", err.Error(), nil)
    case errors.Is(err, domain.ErrNotRecording):
        writeError(w, http.StatusConflict, "NOT_RECORDING", err.Error(), nil)
    case errors.Is(err, usecase.ErrNoFrames):
        writeError(w, http.StatusUnprocessableEntity, "NO_FRAMES", err.Error(), nil)
    case errors.Is(err, domain.ErrShareUnsupported):
        writeError(w, http.StatusNotImplemented, "SHARE_UNSUPPORTED", err.Error(), nil)
    default:
        writeError(w, http.StatusInternalServerError, fallback, err.Error(), nil)
    }
}
