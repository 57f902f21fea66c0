package engine

import (
	"fmt"
	"strings"

	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/config"
	"github.com/biogate/biogate/internal/model"
	"github.com/google/uuid"
)

// Register creates a new identity. Rejected while the global lock is active.
func (e *Engine) Register(displayName string, role model.Role, origin string) (*model.Identity, error) {
	if st := e.checkLock(); st.Locked {
		return nil, &LockedError{RemainingSeconds: st.RemainingSeconds}
	}
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	identity, err := e.dir.Register(displayName, role)
	if err != nil {
		return nil, err
	}

	e.sink.Append(model.AuditEvent{
		EventKind:    model.EventRegistration,
		Severity:     model.SeverityInfo,
		Message:      fmt.Sprintf("new identity created: %s (%s)", identity.DisplayName, identity.Role),
		SourceOrigin: origin,
		IdentityID:   identity.ID,
		IdentityName: identity.DisplayName,
	})
	return identity, nil
}

// EnrollRequest carries a template enrollment.
type EnrollRequest struct {
	IdentityName          string
	Algorithm             model.AlgorithmTag
	Embedding             []float64
	ExternalCredentialRef string
	Origin                string
}

// Enroll binds a biometric template to a registered identity. The sample
// passes the same liveness gate as verification; the stored template gets a
// fresh salt and keyed integrity digest.
func (e *Engine) Enroll(req EnrollRequest) (*model.Identity, error) {
	if st := e.checkLock(); st.Locked {
		return nil, &LockedError{RemainingSeconds: st.RemainingSeconds}
	}
	if !model.ValidAlgorithm(req.Algorithm) {
		return nil, fmt.Errorf("unknown algorithm tag %q", req.Algorithm)
	}

	identity, err := e.dir.FindByName(req.IdentityName)
	if err != nil {
		return nil, err
	}

	if biometric.QualityVariance(req.Embedding) < e.minVariance {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventLivenessFail,
			Severity:     model.SeverityWarning,
			Message:      "enrollment rejected: sample failed quality gate",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
		})
		return nil, ErrLivenessFailed
	}

	salt, err := biometric.NewSalt()
	if err != nil {
		return nil, err
	}

	embedding := append([]float64(nil), req.Embedding...)
	tmpl := &model.BiometricTemplate{
		Algorithm:             req.Algorithm,
		Embedding:             embedding,
		Salt:                  salt,
		IntegrityDigest:       e.verifier.Digest(embedding, salt),
		EncryptedBlobRef:      "blob_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		ExternalCredentialRef: req.ExternalCredentialRef,
		CreatedAt:             e.clk.Now(),
	}
	if err := e.dir.AttachTemplate(identity.ID, tmpl); err != nil {
		return nil, err
	}

	e.sink.Append(model.AuditEvent{
		EventKind:    model.EventEnrollTemplate,
		Severity:     model.SeverityInfo,
		Message:      "biometric template bound to identity",
		SourceOrigin: req.Origin,
		IdentityID:   identity.ID,
		IdentityName: identity.DisplayName,
		Metadata:     map[string]any{"algorithm": string(req.Algorithm)},
	})

	return e.dir.FindByID(identity.ID)
}

// Threshold returns the currently configured similarity threshold.
func (e *Engine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// SetThreshold updates the similarity threshold. Rejected while the system is
// locked; values below the enforced floor are refused with a CRITICAL event.
func (e *Engine) SetThreshold(v float64, origin string) error {
	if st := e.checkLock(); st.Locked {
		return &LockedError{RemainingSeconds: st.RemainingSeconds}
	}
	if v > 1 {
		return fmt.Errorf("similarity threshold must not exceed 1.0, got %v", v)
	}
	if v < config.MinSimilarityThreshold {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventThresholdChange,
			Severity:     model.SeverityCritical,
			Message:      "rejected attempt to lower similarity threshold below floor",
			SourceOrigin: origin,
			Metadata:     map[string]any{"requested": v, "floor": config.MinSimilarityThreshold},
		})
		return ErrThresholdTooLow
	}

	e.mu.Lock()
	old := e.threshold
	e.threshold = v
	e.mu.Unlock()

	e.sink.Append(model.AuditEvent{
		EventKind:    model.EventThresholdChange,
		Severity:     model.SeverityInfo,
		Message:      "similarity threshold updated",
		SourceOrigin: origin,
		Metadata:     map[string]any{"old": old, "new": v},
	})
	return nil
}

// Metrics returns a snapshot of the confusion counters.
func (e *Engine) Metrics() model.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// SystemStatus is the read model served to operators.
type SystemStatus struct {
	Locked             bool          `json:"locked"`
	RemainingSeconds   int           `json:"remainingSeconds"`
	TriggeringIdentity string        `json:"triggeringIdentity,omitempty"`
	Threshold          float64       `json:"threshold"`
	Metrics            model.Metrics `json:"metrics"`
	FAR                float64       `json:"far"`
	FRR                float64       `json:"frr"`
}

// Status reports the lock state and derived FAR/FRR. Checking status is how
// an expired lock gets lazily cleared between verification attempts.
func (e *Engine) Status() SystemStatus {
	st := e.checkLock()
	m := e.Metrics()
	return SystemStatus{
		Locked:             st.Locked,
		RemainingSeconds:   st.RemainingSeconds,
		TriggeringIdentity: st.TriggeringIdentity,
		Threshold:          e.Threshold(),
		Metrics:            m,
		FAR:                m.FAR(),
		FRR:                m.FRR(),
	}
}

// IssueNonce mints a single-use replay-protection challenge with a fixed TTL.
// Nonce issuance mutates engine state, so it is rejected while locked.
func (e *Engine) IssueNonce(origin string) (string, error) {
	if st := e.checkLock(); st.Locked {
		return "", &LockedError{RemainingSeconds: st.RemainingSeconds}
	}

	now := e.clk.Now()
	nonce := uuid.New().String()

	e.mu.Lock()
	for n, exp := range e.nonces {
		if now.After(exp) {
			delete(e.nonces, n)
		}
	}
	e.nonces[nonce] = now.Add(e.nonceTTL)
	e.mu.Unlock()

	return nonce, nil
}

// consumeNonce burns a challenge, reporting whether it was live.
func (e *Engine) consumeNonce(nonce string) bool {
	now := e.clk.Now()

	e.mu.Lock()
	exp, ok := e.nonces[nonce]
	if ok {
		delete(e.nonces, nonce)
	}
	e.mu.Unlock()

	return ok && !now.After(exp)
}

// PendingNonces returns the number of unconsumed challenges.
func (e *Engine) PendingNonces() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.nonces)
}
