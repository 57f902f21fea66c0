package handler

import (
	"net/http"
	"strconv"

	"github.com/biogate/biogate/internal/engine"
)

// Logs returns the most recent audit events, newest first
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events := h.ring.Snapshot(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Status reports the lock state, threshold, and accuracy metrics
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Status())
}

// ThresholdRequest represents a similarity threshold update
type ThresholdRequest struct {
	Threshold float64 `json:"threshold"`
}

// SetThreshold updates the similarity threshold
func (h *Handler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.eng.SetThreshold(req.Threshold, getClientIP(r)); err != nil {
		h.engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": h.eng.Threshold(),
	})
}

// ThreatRequest represents an attack simulation request
type ThreatRequest struct {
	Kind          string `json:"kind"`
	Target        string `json:"target"`
	SecurityLevel string `json:"securityLevel,omitempty"`
}

// ExecuteThreat drives a simulated attack through the live pipeline
func (h *Handler) ExecuteThreat(w http.ResponseWriter, r *http.Request) {
	var req ThreatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Kind == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "kind and target are required")
		return
	}
	switch engine.ThreatKind(req.Kind) {
	case engine.ThreatBruteForce, engine.ThreatReplay, engine.ThreatSessionHijacking, engine.ThreatInjection:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown threat kind")
		return
	}

	result, err := h.eng.SimulateThreat(r.Context(), engine.ThreatKind(req.Kind), req.Target, req.SecurityLevel, getClientIP(r))
	if err != nil {
		h.engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
