package web

// errors.go turns pipeline errors into JSON responses.
//
// Validation failures answer 400 with only the message, matching what the
// browser client displays verbatim. Everything past validation carries the
// technical error in "details" plus a support code from core.MapError, and
// is logged with the request id so the two can be correlated.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sqlview/internal/core"
	"github.com/JonMunkholm/sqlview/internal/logging"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
	Action  string `json:"action,omitempty"`
}

// statusFor picks the HTTP status for a pipeline error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case isBodyTooLarge(err), errors.Is(err, core.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isBodyTooLarge reports whether err came from http.MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// respondError logs err and writes the matching JSON error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.FromContext(r.Context())

	if status == http.StatusBadRequest {
		logger.Warn("upload rejected", "error", err)
		writeJSON(w, status, ErrorResponse{Error: validationMessage(err)})
		return
	}

	msg := core.MapError(err)
	if status == http.StatusRequestEntityTooLarge {
		msg = core.MapError(core.ErrTooLarge)
	}

	logger.Log(r.Context(), logLevel(err, status), "request failed",
		"path", r.URL.Path,
		"status", status,
		"code", msg.Code,
		"error", err,
	)

	if status == http.StatusServiceUnavailable {
		secs := int(s.cfg.Upload.MaxWaitTime.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Details: err.Error(),
		Code:    msg.Code,
		Action:  msg.Action,
	})
}

// logLevel keeps error level for failures the server or the file caused.
// Rejected requests and saturation are warnings.
func logLevel(err error, status int) slog.Level {
	if core.IsClientError(err) || isBodyTooLarge(err) || status == http.StatusServiceUnavailable {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// validationMessage returns the bare message a client sees for a 400.
func validationMessage(err error) string {
	switch core.MapError(err).Code {
	case "VAL002":
		return core.MsgEmptyFilename
	case "VAL003":
		return "Malformed upload request"
	default:
		return core.MsgNoFile
	}
}

// writeJSON encodes v with status. Encoding errors are only logged since the
// header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}
