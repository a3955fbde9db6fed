package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"guild-quiz-service/internal/domain"
)

type jsonResponse struct {
	Error   bool   `json:"error"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonResponse{Data: data, Message: msg})
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(jsonResponse{Error: true, Message: domain.Notice(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotElevated):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTimezone), errors.Is(err, domain.ErrInvalidSchedule):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGuildNotRegistered), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoQuizAvailable), errors.Is(err, domain.ErrDuplicateSession),
		errors.Is(err, domain.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
