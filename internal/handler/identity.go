package handler

import (
	"net/http"

	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/model"
)

// RegisterRequest represents an identity registration request
type RegisterRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Register creates a new identity
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.Role == "" {
		req.Role = string(model.RoleUser)
	}
	if !model.ValidRole(model.Role(req.Role)) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}

	identity, err := h.eng.Register(req.Name, model.Role(req.Role), getClientIP(r))
	if err != nil {
		h.engineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, identity)
}

// EnrollRequest represents a template enrollment request
type EnrollRequest struct {
	Algorithm             string    `json:"algorithm"`
	Embedding             []float64 `json:"embedding"`
	ExternalCredentialRef string    `json:"externalCredentialRef,omitempty"`
}

// Enroll binds a biometric template to an identity
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identity name is required")
		return
	}

	var req EnrollRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Algorithm == "" {
		req.Algorithm = string(model.AlgorithmPrimary)
	}
	if !model.ValidAlgorithm(model.AlgorithmTag(req.Algorithm)) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown algorithm")
		return
	}

	identity, err := h.eng.Enroll(engine.EnrollRequest{
		IdentityName:          name,
		Algorithm:             model.AlgorithmTag(req.Algorithm),
		Embedding:             req.Embedding,
		ExternalCredentialRef: req.ExternalCredentialRef,
		Origin:                getClientIP(r),
	})
	if err != nil {
		h.engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, identity)
}
