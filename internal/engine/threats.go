package engine

import (
	"context"
	"fmt"

	"github.com/biogate/biogate/internal/model"
)

// ThreatKind names a simulated attack scenario.
type ThreatKind string

const (
	ThreatBruteForce       ThreatKind = "BRUTE_FORCE"
	ThreatReplay           ThreatKind = "REPLAY"
	ThreatSessionHijacking ThreatKind = "SESSION_HIJACKING"
	ThreatInjection        ThreatKind = "INJECTION"
)

// Security levels for threat simulation. At HIGH, signature-based attacks
// (replay, hijacking, injection) freeze the system immediately; at LOW they
// only produce audit evidence.
const (
	SecurityLevelHigh = "HIGH"
	SecurityLevelLow  = "LOW"
)

// maxBruteForceProbes bounds the probe loop independently of the configured
// impersonation threshold.
const maxBruteForceProbes = 10

// SimulationResult reports what a threat simulation did to the system.
type SimulationResult struct {
	Kind              ThreatKind `json:"kind"`
	Probes            int        `json:"probes"`
	Locked            bool       `json:"locked"`
	RetryAfterSeconds int        `json:"retryAfterSeconds,omitempty"`
	Message           string     `json:"message"`
}

// SimulateThreat drives an adversarial scenario through the live pipeline so
// operators can confirm the defenses trip. Brute force runs real failing
// verifications until the impersonation counter locks the system; the
// signature-based attacks are injected as audit evidence and, at HIGH
// security, escalate straight to lockdown.
func (e *Engine) SimulateThreat(ctx context.Context, kind ThreatKind, targetName, level, origin string) (SimulationResult, error) {
	if st := e.checkLock(); st.Locked {
		return SimulationResult{}, &LockedError{RemainingSeconds: st.RemainingSeconds}
	}
	if level == "" {
		level = SecurityLevelHigh
	}

	target, err := e.dir.FindByName(targetName)
	if err != nil {
		return SimulationResult{}, err
	}

	e.sink.Append(model.AuditEvent{
		EventKind:    model.EventThreatSimulation,
		Severity:     model.SeverityWarning,
		Message:      fmt.Sprintf("threat simulation started: %s against %s", kind, target.DisplayName),
		SourceOrigin: origin,
		IdentityID:   target.ID,
		IdentityName: target.DisplayName,
		Metadata:     map[string]any{"securityLevel": level},
	})

	switch kind {
	case ThreatBruteForce:
		return e.simulateBruteForce(ctx, target, origin)
	case ThreatReplay:
		return e.simulateSignatureAttack(kind, target, level, origin, model.EventReplayAttack,
			"replayed challenge detected during simulation")
	case ThreatSessionHijacking:
		return e.simulateSignatureAttack(kind, target, level, origin, model.EventThreatSimulation,
			"session hijacking signature detected during simulation")
	case ThreatInjection:
		return e.simulateSignatureAttack(kind, target, level, origin, model.EventThreatSimulation,
			"injection signature detected during simulation")
	default:
		return SimulationResult{}, fmt.Errorf("unknown threat kind %q", kind)
	}
}

// simulateBruteForce fires impostor probes until lockdown triggers or the
// probe budget runs out. Probes are flagged as simulated attacks so they land
// on the true-reject side of the confusion counters.
func (e *Engine) simulateBruteForce(ctx context.Context, target *model.Identity, origin string) (SimulationResult, error) {
	tmpl, err := e.dir.Template(target.ID)
	if err != nil {
		return SimulationResult{}, err
	}

	probe := impostorProbe(len(tmpl.Embedding))
	res := SimulationResult{Kind: ThreatBruteForce}

	for res.Probes < maxBruteForceProbes {
		out := e.Verify(ctx, VerifyRequest{
			IdentityID:      target.ID,
			Method:          tmpl.Algorithm,
			Sample:          probe,
			Origin:          origin,
			SimulatedAttack: true,
		})
		res.Probes++

		switch out.Outcome {
		case OutcomeLocked:
			res.Locked = true
			res.RetryAfterSeconds = out.RetryAfterSeconds
			res.Message = fmt.Sprintf("brute force triggered lockdown after %d probes", res.Probes)
			return res, nil
		case OutcomeRejected:
			continue
		case OutcomeAccepted:
			// An accepted impostor probe is exactly the false accept the
			// counters exist to expose; stop immediately.
			res.Message = "impostor probe was accepted; inspect threshold configuration"
			return res, nil
		default:
			res.Message = fmt.Sprintf("simulation halted: %s", out.Outcome)
			return res, nil
		}
	}

	res.Message = "probe budget exhausted without lockdown"
	return res, nil
}

func (e *Engine) simulateSignatureAttack(kind ThreatKind, target *model.Identity, level, origin, eventKind, message string) (SimulationResult, error) {
	e.sink.Append(model.AuditEvent{
		EventKind:    eventKind,
		Severity:     model.SeverityCritical,
		Message:      message,
		SourceOrigin: origin,
		IdentityID:   target.ID,
		IdentityName: target.DisplayName,
	})

	res := SimulationResult{Kind: kind, Probes: 1}
	if level != SecurityLevelHigh {
		res.Message = "attack signature recorded; security level below HIGH, no lockdown"
		return res, nil
	}

	out := e.lock.Trigger(target.ID)
	if out.Triggered {
		e.sink.Append(model.AuditEvent{
			EventKind:    model.EventLockdownTriggered,
			Severity:     model.SeverityCritical,
			Message:      fmt.Sprintf("%s simulation escalated to system lockdown", kind),
			SourceOrigin: origin,
			IdentityID:   target.ID,
			IdentityName: target.DisplayName,
			Metadata:     map[string]any{"retryAfterSeconds": out.RemainingSeconds},
		})
	}
	res.Locked = out.Locked
	res.RetryAfterSeconds = out.RemainingSeconds
	res.Message = fmt.Sprintf("%s signature escalated to lockdown", kind)
	return res, nil
}

// impostorProbe builds a deterministic sample that passes the liveness gate
// but is geometrically unrelated to any realistic enrollment.
func impostorProbe(dim int) []float64 {
	if dim == 0 {
		dim = 128
	}
	probe := make([]float64, dim)
	for i := range probe {
		if i%2 == 0 {
			probe[i] = 1
		} else {
			probe[i] = -1
		}
	}
	return probe
}
