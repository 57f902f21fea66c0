package engine

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/biogate/biogate/internal/audit"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/clock"
	"github.com/biogate/biogate/internal/config"
	"github.com/biogate/biogate/internal/directory"
	"github.com/biogate/biogate/internal/lockdown"
	"github.com/biogate/biogate/internal/logger"
	"github.com/biogate/biogate/internal/model"
	"github.com/biogate/biogate/internal/ratelimit"
	"github.com/biogate/biogate/internal/session"
	"github.com/google/uuid"
)

// externalAssertionScore is the fixed confidence assigned to a completed
// platform assertion on the external-credential path. It bypasses the
// embedding comparison entirely.
const externalAssertionScore = 0.99

// Engine runs the authentication decision pipeline. All mutable state lives
// in the injected collaborators or behind the engine's own lock; no ambient
// singletons, so tests can run independent engines in parallel.
type Engine struct {
	log      *logger.Logger
	clk      clock.Clock
	dir      *directory.Directory
	limiter  *ratelimit.Limiter
	lock     *lockdown.Controller
	verifier *biometric.IntegrityVerifier
	sink     audit.Sink
	tokens   *session.TokenService
	sessions session.Store

	sessionTTL  time.Duration
	verifyDelay time.Duration
	minVariance float64
	nonceTTL    time.Duration

	mu        sync.Mutex
	threshold float64
	metrics   model.Metrics
	nonces    map[string]time.Time
}

// New assembles an Engine from its collaborators and configuration.
func New(
	cfg *config.Config,
	dir *directory.Directory,
	limiter *ratelimit.Limiter,
	lock *lockdown.Controller,
	verifier *biometric.IntegrityVerifier,
	sink audit.Sink,
	tokens *session.TokenService,
	sessions session.Store,
	clk clock.Clock,
	log *logger.Logger,
) *Engine {
	return &Engine{
		log:         log.WithComponent("engine"),
		clk:         clk,
		dir:         dir,
		limiter:     limiter,
		lock:        lock,
		verifier:    verifier,
		sink:        sink,
		tokens:      tokens,
		sessions:    sessions,
		sessionTTL:  cfg.Sessions.TTL,
		verifyDelay: cfg.Security.VerifyDelay,
		minVariance: cfg.Security.Similarity.MinVariance,
		nonceTTL:    cfg.Security.Nonces.TTL,
		threshold:   cfg.Security.Similarity.Threshold,
		nonces:      make(map[string]time.Time),
	}
}

// VerifyRequest carries one verification attempt.
type VerifyRequest struct {
	// IdentityID is the claimed identity, by directory ID.
	IdentityID string
	// Method is the modality the caller claims to be presenting.
	Method model.AlgorithmTag
	// Sample is the probe embedding. It may be empty only on the
	// external-credential path.
	Sample []float64
	// Origin is the network-level source, the rate-limiting key.
	Origin string
	// Nonce, when set, must be a live single-use challenge.
	Nonce string
	// SimulatedAttack marks the probe as ground-truth impostor input for
	// the confusion counters.
	SimulatedAttack bool
	// ThresholdOverride, when set, replaces the configured similarity
	// threshold for this call only.
	ThresholdOverride *float64
}

// Verify runs the full decision pipeline for a claimed identity. Step order
// is fixed: a locked system rejects before consuming a rate-limit slot, and
// a throttled origin rejects before any identity work happens.
func (e *Engine) Verify(ctx context.Context, req VerifyRequest) Result {
	if st := e.checkLock(); st.Locked {
		return Result{
			Outcome:           OutcomeLocked,
			RetryAfterSeconds: st.RemainingSeconds,
			Message:           "system lockdown active",
		}
	}

	dec := e.limiter.Admit(req.Origin)
	if !dec.Admitted {
		if dec.FirstThrottle {
			e.sink.Append(model.AuditEvent{
				EventKind:    model.EventRateLimited,
				Severity:     model.SeverityWarning,
				Message:      "verification attempts throttled",
				SourceOrigin: req.Origin,
				Metadata:     map[string]any{"retryAfterSeconds": retrySeconds(dec.RetryAfter)},
			})
		}
		return Result{
			Outcome:           OutcomeRateLimited,
			RetryAfterSeconds: retrySeconds(dec.RetryAfter),
			Message:           "too many attempts from this origin",
		}
	}

	if req.Nonce != "" && !e.consumeNonce(req.Nonce) {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventReplayAttack,
			Severity:     model.SeverityCritical,
			Message:      "invalid or expired challenge nonce",
			SourceOrigin: req.Origin,
			IdentityID:   req.IdentityID,
		})
		return Result{Outcome: OutcomeReplayDetected, Message: "invalid or expired challenge"}
	}

	// Models downstream network/compute latency. Ordering matters more than
	// the wait itself, so zero is the default.
	if e.verifyDelay > 0 {
		time.Sleep(e.verifyDelay)
	}

	identity, err := e.dir.FindByID(req.IdentityID)
	if err != nil {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventVerifyFail,
			Severity:     model.SeverityInfo,
			Message:      "verification against unknown identity",
			SourceOrigin: req.Origin,
			IdentityID:   req.IdentityID,
		})
		return Result{Outcome: OutcomeIdentityNotFound, Message: "identity not found"}
	}

	tmpl, err := e.dir.Template(identity.ID)
	if err != nil {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventVerifyFail,
			Severity:     model.SeverityInfo,
			Message:      "verification against unenrolled identity",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
		})
		return Result{Outcome: OutcomeNotEnrolled, Message: "identity is not enrolled"}
	}

	// Method mismatches are caller mistakes, not impersonation signals:
	// they never touch the failure counters.
	if tmpl.Algorithm != req.Method {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventVerifyFail,
			Severity:     model.SeverityInfo,
			Message:      "verification with mismatched method",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
			Metadata:     map[string]any{"requested": string(req.Method), "enrolled": string(tmpl.Algorithm)},
		})
		return Result{Outcome: OutcomeMethodMismatch, Message: "method does not match enrollment"}
	}

	// External-credential path: a non-empty sample stands in for a
	// completed platform assertion and is scored at fixed high confidence.
	if tmpl.ExternalCredentialRef != "" {
		if len(req.Sample) == 0 {
			e.sink.Append(model.AuditEvent{
				EventKind:    model.EventExternalAssertion,
				Severity:     model.SeverityWarning,
				Message:      "external assertion missing or rejected",
				SourceOrigin: req.Origin,
				IdentityID:   identity.ID,
				IdentityName: identity.DisplayName,
			})
			return Result{Outcome: OutcomeExternalCredentialRejected, Message: "platform assertion rejected"}
		}
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventExternalAssertion,
			Severity:     model.SeverityInfo,
			Message:      "external platform assertion accepted",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
			Metadata:     map[string]any{"credentialRef": tmpl.ExternalCredentialRef},
		})
		return e.finalize(ctx, identity, externalAssertionScore, req)
	}

	// Liveness gate: near-uniform input signals a static capture. No
	// similarity score is computed for a failed gate.
	if biometric.QualityVariance(req.Sample) < e.minVariance {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventLivenessFail,
			Severity:     model.SeverityWarning,
			Message:      "liveness check failed during verification",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
		})
		return Result{Outcome: OutcomeLivenessFailed, Message: "liveness check failed"}
	}

	// Tampering is a data-integrity violation, not an authentication
	// failure: it is reported as CRITICAL, short-circuits the pipeline and
	// does not feed the impersonation counter.
	if !e.verifier.Verify(tmpl) {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventIntegrityViolation,
			Severity:     model.SeverityCritical,
			Message:      "stored template failed integrity verification",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
		})
		return Result{Outcome: OutcomeIntegrityViolation, Message: "template integrity violation"}
	}

	score := biometric.CosineSimilarity(req.Sample, tmpl.Embedding)
	return e.finalize(ctx, identity, score, req)
}

// finalize classifies the score, updates the confusion counters, feeds the
// lockdown controller and either mints a session or reports the failure.
func (e *Engine) finalize(ctx context.Context, identity *model.Identity, score float64, req VerifyRequest) Result {
	threshold := e.Threshold()
	if req.ThresholdOverride != nil {
		threshold = *req.ThresholdOverride
	}
	matched := score >= threshold

	out := e.lock.RecordOutcome(identity.ID, matched)

	// The attempt that trips the lockdown is reported as a blocking event,
	// not a normal rejection: it skips the confusion counters entirely.
	if !matched && out.Triggered {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventLockdownTriggered,
			Severity:     model.SeverityCritical,
			Message:      "consecutive failures triggered system lockdown",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
			Metadata: map[string]any{
				"failures":          out.Failures,
				"score":             roundScore(score),
				"retryAfterSeconds": out.RemainingSeconds,
			},
		})
		return Result{
			Outcome:           OutcomeLocked,
			Score:             score,
			RetryAfterSeconds: out.RemainingSeconds,
			Message:           "system locked after repeated impersonation signals",
		}
	}

	e.mu.Lock()
	switch {
	case matched && req.SimulatedAttack:
		e.metrics.FalseAccepts++
	case matched:
		e.metrics.TrueAccepts++
	case req.SimulatedAttack:
		e.metrics.TrueRejects++
	default:
		e.metrics.FalseRejects++
	}
	e.mu.Unlock()

	if !matched {
		if out.Locked {
			// A concurrent failure for the same identity won the trigger
			// race; this call still reports the lock, without a second
			// lockdown event.
			return Result{
				Outcome:           OutcomeLocked,
				Score:             score,
				RetryAfterSeconds: out.RemainingSeconds,
				Message:           "system lockdown active",
			}
		}
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventVerifyFail,
			Severity:     model.SeverityWarning,
			Message:      "similarity below threshold",
			SourceOrigin: req.Origin,
			IdentityID:   identity.ID,
			IdentityName: identity.DisplayName,
			Metadata: map[string]any{
				"score":               roundScore(score),
				"threshold":           threshold,
				"consecutiveFailures": out.Failures,
			},
		})
		return Result{Outcome: OutcomeRejected, Score: score, Message: "not recognized"}
	}

	now := e.clk.Now()
	expires := now.Add(e.sessionTTL)
	access, refresh, err := e.tokens.Mint(identity, req.Origin, now, expires)
	if err != nil {
		e.log.Error().Err(err).Str("identity_id", identity.ID).Msg("failed to mint session tokens")
		return Result{Outcome: OutcomeError, Score: score, Message: "session issuance failed"}
	}

	sess := &model.Session{
		ID:           "ses_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		AccessToken:  access,
		RefreshToken: refresh,
		OwnerID:      identity.ID,
		BoundOrigin:  req.Origin,
		Role:         identity.Role,
		IssuedAt:     now,
		ExpiresAt:    expires,
	}
	if err := e.sessions.Put(ctx, sess); err != nil {
		// Session storage trouble is logged, not surfaced: the caller
		// already holds the tokens.
		e.log.Error().Err(err).Str("session_id", sess.ID).Msg("failed to store session")
	}

	e.sink.Append(model.AuditEvent{
		EventKind:    model.EventVerifySuccess,
		Severity:     model.SeverityInfo,
		Message:      "access granted",
		SourceOrigin: req.Origin,
		IdentityID:   identity.ID,
		IdentityName: identity.DisplayName,
		Metadata:     map[string]any{"score": roundScore(score), "sessionId": sess.ID},
	})

	return Result{Outcome: OutcomeAccepted, Score: score, Session: sess, Message: "access granted"}
}

// checkLock consults the global lock and emits the one-shot lifted event
// when this check observed the expiry.
func (e *Engine) checkLock() lockdown.Status {
	st := e.lock.CheckGlobalLock()
	if st.Lifted {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventLockdownLifted,
			Severity:     model.SeverityInfo,
			Message:      "system lockdown lifted",
			SourceOrigin: "SYSTEM",
			IdentityID:   st.TriggeringIdentity,
		})
	}
	return st
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

func retrySeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
