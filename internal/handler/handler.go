package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/biogate/biogate/internal/audit"
	"github.com/biogate/biogate/internal/config"
	"github.com/biogate/biogate/internal/directory"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/logger"
)

// Handler holds all HTTP handlers
type Handler struct {
	eng  *engine.Engine
	dir  *directory.Directory
	ring *audit.Ring
	log  *logger.Logger
	cfg  *config.Config
}

// New creates a new Handler instance
func New(eng *engine.Engine, dir *directory.Directory, ring *audit.Ring, log *logger.Logger, cfg *config.Config) *Handler {
	return &Handler{
		eng:  eng,
		dir:  dir,
		ring: ring,
		log:  log,
		cfg:  cfg,
	}
}

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// engineError maps engine and directory errors to HTTP responses
func (h *Handler) engineError(w http.ResponseWriter, err error) {
	var locked *engine.LockedError
	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(locked.RemainingSeconds))
		writeError(w, http.StatusLocked, "system_locked", err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, http.StatusNotFound, "identity_not_found", err.Error())
	case errors.Is(err, directory.ErrDuplicateName):
		writeError(w, http.StatusConflict, "duplicate_name", err.Error())
	case errors.Is(err, directory.ErrNotEnrolled):
		writeError(w, http.StatusNotFound, "not_enrolled", err.Error())
	case errors.Is(err, directory.ErrAlreadyEnrolled):
		writeError(w, http.StatusConflict, "already_enrolled", err.Error())
	case errors.Is(err, engine.ErrLivenessFailed):
		writeError(w, http.StatusForbidden, "liveness_failed", err.Error())
	case errors.Is(err, engine.ErrThresholdTooLow):
		writeError(w, http.StatusBadRequest, "threshold_too_low", err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// outcomeStatus maps a verification outcome to its HTTP status code
func outcomeStatus(o engine.Outcome) int {
	switch o {
	case engine.OutcomeAccepted:
		return http.StatusOK
	case engine.OutcomeRejected, engine.OutcomeReplayDetected:
		return http.StatusUnauthorized
	case engine.OutcomeLocked:
		return http.StatusLocked
	case engine.OutcomeRateLimited:
		return http.StatusTooManyRequests
	case engine.OutcomeIdentityNotFound, engine.OutcomeNotEnrolled:
		return http.StatusNotFound
	case engine.OutcomeMethodMismatch, engine.OutcomeExternalCredentialRejected, engine.OutcomeLivenessFailed:
		return http.StatusForbidden
	case engine.OutcomeIntegrityViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
