package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/biogate/biogate/internal/directory"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/model"
)

// VerifyRequest represents a verification attempt
type VerifyRequest struct {
	Identity          string    `json:"identity,omitempty"`
	IdentityID        string    `json:"identityId,omitempty"`
	Method            string    `json:"method"`
	Sample            []float64 `json:"sample"`
	Nonce             string    `json:"nonce,omitempty"`
	ThresholdOverride *float64  `json:"thresholdOverride,omitempty"`
	SimulatedAttack   bool      `json:"simulatedAttack,omitempty"`
}

// Verify runs a verification attempt through the decision pipeline
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Identity == "" && req.IdentityID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identity or identityId is required")
		return
	}
	if req.Method == "" {
		req.Method = string(model.AlgorithmPrimary)
	}

	// Resolve display names to IDs up front. Unknown names still go through
	// the pipeline so lock and rate-limit checks keep their fixed order.
	identityID := req.IdentityID
	if identityID == "" {
		if identity, err := h.dir.FindByName(req.Identity); err == nil {
			identityID = identity.ID
		} else if errors.Is(err, directory.ErrNotFound) {
			identityID = req.Identity
		} else {
			h.engineError(w, err)
			return
		}
	}

	result := h.eng.Verify(r.Context(), engine.VerifyRequest{
		IdentityID:        identityID,
		Method:            model.AlgorithmTag(req.Method),
		Sample:            req.Sample,
		Origin:            getClientIP(r),
		Nonce:             req.Nonce,
		SimulatedAttack:   req.SimulatedAttack,
		ThresholdOverride: req.ThresholdOverride,
	})

	if result.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
	}
	writeJSON(w, outcomeStatus(result.Outcome), result)
}

// IdentifyRequest represents a one-to-many identification sweep
type IdentifyRequest struct {
	Sample []float64 `json:"sample"`
}

// Identify matches a sample against every enrolled template
func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	var req IdentifyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(req.Sample) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "sample is required")
		return
	}

	result := h.eng.Identify(req.Sample, getClientIP(r))
	if result.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
	}
	writeJSON(w, outcomeStatus(result.Outcome), result)
}

// ChallengeResponse carries a freshly minted replay-protection nonce
type ChallengeResponse struct {
	Nonce            string `json:"nonce"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// Challenge issues a single-use verification nonce
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	nonce, err := h.eng.IssueNonce(getClientIP(r))
	if err != nil {
		h.engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChallengeResponse{
		Nonce:            nonce,
		ExpiresInSeconds: int(h.cfg.Security.Nonces.TTL.Seconds()),
	})
}
