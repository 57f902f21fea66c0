package engine

import (
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/model"
)

// IdentifyResult is the outcome of a 1:N identification sweep.
type IdentifyResult struct {
	Outcome   Outcome         `json:"outcome"`
	BestScore float64         `json:"bestScore"`
	Identity  *model.Identity `json:"identity,omitempty"`
	// RetryAfterSeconds is set for LOCKED and RATE_LIMITED outcomes.
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Identify scores a sample against every enrolled template and reports the
// best candidate. It is a search, not a claimed-identity attempt: it never
// touches the failure counters or the confusion metrics, but it still
// respects the lock, the rate limit and the liveness gate.
func (e *Engine) Identify(sample []float64, origin string) IdentifyResult {
	if st := e.checkLock(); st.Locked {
		return IdentifyResult{
			Outcome:           OutcomeLocked,
			RetryAfterSeconds: st.RemainingSeconds,
			Message:           "system lockdown active",
		}
	}

	dec := e.limiter.Admit(origin)
	if !dec.Admitted {
		if dec.FirstThrottle {
			e.sink.Append(model.AuditEvent{
				EventKind:    model.EventRateLimited,
				Severity:     model.SeverityWarning,
				Message:      "identification attempts throttled",
				SourceOrigin: origin,
			})
		}
		return IdentifyResult{
			Outcome:           OutcomeRateLimited,
			RetryAfterSeconds: retrySeconds(dec.RetryAfter),
			Message:           "too many attempts from this origin",
		}
	}

	if biometric.QualityVariance(sample) < e.minVariance {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventLivenessFail,
			Severity:     model.SeverityWarning,
			Message:      "liveness check failed during identification",
			SourceOrigin: origin,
		})
		return IdentifyResult{Outcome: OutcomeLivenessFailed, Message: "liveness check failed"}
	}

	threshold := e.Threshold()
	bestScore := -1.0
	var best *model.Identity

	for _, identity := range e.dir.Enrolled() {
		tmpl, err := e.dir.Template(identity.ID)
		if err != nil {
			continue
		}
		if !e.verifier.Verify(tmpl) {
			// A tampered template is excluded from the sweep and reported;
			// the remaining candidates still get scored.
			e.sink.Append(model.AuditEvent{
				EventKind:    model.EventIntegrityViolation,
				Severity:     model.SeverityCritical,
				Message:      "stored template failed integrity verification during sweep",
				SourceOrigin: origin,
				IdentityID:   identity.ID,
				IdentityName: identity.DisplayName,
			})
			continue
		}
		if score := biometric.CosineSimilarity(sample, tmpl.Embedding); score > bestScore {
			bestScore = score
			best = identity
		}
	}

	if best == nil || bestScore < threshold {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventIdentifySweep,
			Severity:     model.SeverityWarning,
			Message:      "identification sweep found no match",
			SourceOrigin: origin,
			Metadata:     map[string]any{"bestScore": roundScore(bestScore)},
		})
		return IdentifyResult{Outcome: OutcomeRejected, BestScore: bestScore, Message: "no enrolled identity matched"}
	}

	e.sink.Append(model.AuditEvent{
		EventKind:    model.EventIdentifySweep,
		Severity:     model.SeverityInfo,
		Message:      "identification sweep matched " + best.DisplayName,
		SourceOrigin: origin,
		IdentityID:   best.ID,
		IdentityName: best.DisplayName,
		Metadata:     map[string]any{"bestScore": roundScore(bestScore)},
	})
	return IdentifyResult{Outcome: OutcomeAccepted, BestScore: bestScore, Identity: best}
}
