package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// statusFor maps the session error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, motionquiz.ErrUnauthorized), errors.Is(err, motionquiz.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, motionquiz.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, motionquiz.ErrInvalidState),
		errors.Is(err, motionquiz.ErrDuplicateResponse),
		errors.Is(err, motionquiz.ErrStaleQuestion),
		errors.Is(err, motionquiz.ErrNoPlayers),
		errors.Is(err, motionquiz.ErrNoQuestions):
		return http.StatusConflict
	case errors.Is(err, motionquiz.ErrUnsupportedQuestionType):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeSessionError renders err with its reason code. Errors outside the
// taxonomy are logged and reported as internal.
func writeSessionError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeError(w, status, "internal", "internal error")
		return
	}
	writeError(w, status, motionquiz.Code(err), err.Error())
}
