package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/biogate/biogate/internal/audit"
	"github.com/biogate/biogate/internal/biometric"
	"github.com/biogate/biogate/internal/clock"
	"github.com/biogate/biogate/internal/config"
	"github.com/biogate/biogate/internal/directory"
	"github.com/biogate/biogate/internal/engine"
	"github.com/biogate/biogate/internal/handler"
	"github.com/biogate/biogate/internal/lockdown"
	"github.com/biogate/biogate/internal/logger"
	"github.com/biogate/biogate/internal/middleware"
	"github.com/biogate/biogate/internal/ratelimit"
	"github.com/biogate/biogate/internal/router"
	"github.com/biogate/biogate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var aliceEmbedding = []float64{0.9, 0.1, 0.4, 0.8, 0.2, 0.7}

var impostorSample = []float64{-0.9, -0.1, -0.4, -0.8, -0.2, -0.7}

type fixture struct {
	clk    *clock.Manual
	srv    http.Handler
	ring   *audit.Ring
	client string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Sessions: config.SessionConfig{Backend: "memory", TTL: 15 * time.Minute, Issuer: "biogate-test"},
		Audit:    config.AuditConfig{RingSize: 100},
		Security: config.SecurityConfig{
			Similarity:   config.SimilarityConfig{Threshold: 0.94, MinVariance: 0.01},
			RateLimiting: config.RateLimitingConfig{Window: time.Minute, MaxAttempts: 5},
			Lockdown:     config.LockdownConfig{ImpersonationThreshold: 3, Duration: time.Minute},
			Nonces:       config.NonceConfig{TTL: time.Minute},
		},
	}

	clk := clock.NewManual(testStart)
	log := logger.New("error", "json")

	dir := directory.New(clk)
	limiter := ratelimit.New(cfg.Security.RateLimiting.Window, cfg.Security.RateLimiting.MaxAttempts, clk)
	lock := lockdown.New(cfg.Security.Lockdown.ImpersonationThreshold, cfg.Security.Lockdown.Duration, clk)
	verifier, err := biometric.NewIntegrityVerifier([]byte("test-integrity-key"))
	require.NoError(t, err)
	ring := audit.NewRing(cfg.Audit.RingSize, clk, log)
	tokens, err := session.NewTokenService(cfg.Sessions.Issuer)
	require.NoError(t, err)
	sessions := session.NewMemoryStore(clk)

	eng := engine.New(cfg, dir, limiter, lock, verifier, ring, tokens, sessions, clk, log)
	h := handler.New(eng, dir, ring, log, cfg)
	mw := middleware.New(log, cfg)

	return &fixture{
		clk:    clk,
		srv:    router.New(h, mw),
		ring:   ring,
		client: "10.0.0.1:55000",
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = f.client
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func (f *fixture) register(t *testing.T, name string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/identities", map[string]string{"name": name, "role": "USER"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (f *fixture) enroll(t *testing.T, name string, embedding []float64) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/identities/"+name+"/enroll", map[string]interface{}{
		"algorithm": "PRIMARY",
		"embedding": embedding,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/identities", map[string]string{"name": "alice", "role": "USER"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var identity struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Enrolled    bool   `json:"enrolled"`
	}
	decode(t, rec, &identity)
	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, "alice", identity.DisplayName)
	assert.False(t, identity.Enrolled)

	// Duplicate names conflict.
	rec = f.do(t, http.MethodPost, "/api/v1/identities", map[string]string{"name": "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/identities", map[string]string{"name": "bob", "role": "WIZARD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/identities", map[string]string{"role": "USER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	rec := f.do(t, http.MethodPost, "/api/v1/identities/alice/enroll", map[string]interface{}{
		"algorithm": "PRIMARY",
		"embedding": aliceEmbedding,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var identity struct {
		Enrolled bool `json:"enrolled"`
	}
	decode(t, rec, &identity)
	assert.True(t, identity.Enrolled)

	// Second enrollment conflicts.
	rec = f.do(t, http.MethodPost, "/api/v1/identities/alice/enroll", map[string]interface{}{
		"algorithm": "PRIMARY",
		"embedding": aliceEmbedding,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnroll_Failures(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	rec := f.do(t, http.MethodPost, "/api/v1/identities/nobody/enroll", map[string]interface{}{
		"embedding": aliceEmbedding,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A flat sample fails the quality gate.
	rec = f.do(t, http.MethodPost, "/api/v1/identities/alice/enroll", map[string]interface{}{
		"embedding": []float64{0.5, 0.5, 0.5, 0.5},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/identities/alice/enroll", map[string]interface{}{
		"algorithm": "BOGUS",
		"embedding": aliceEmbedding,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerify_Accepted(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.enroll(t, "alice", aliceEmbedding)

	rec := f.do(t, http.MethodPost, "/api/v1/verify", map[string]interface{}{
		"identity": "alice",
		"method":   "PRIMARY",
		"sample":   aliceEmbedding,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Outcome string  `json:"outcome"`
		Score   float64 `json:"score"`
		Session *struct {
			ID          string `json:"id"`
			AccessToken string `json:"accessToken"`
		} `json:"session"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "ACCEPTED", res.Outcome)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
	require.NotNil(t, res.Session)
	assert.NotEmpty(t, res.Session.ID)
	assert.NotEmpty(t, res.Session.AccessToken)
}

func TestVerify_Rejected(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.enroll(t, "alice", aliceEmbedding)

	rec := f.do(t, http.MethodPost, "/api/v1/verify", map[string]interface{}{
		"identity": "alice",
		"sample":   impostorSample,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerify_UnknownIdentity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/verify", map[string]interface{}{
		"identity": "nobody",
		"sample":   aliceEmbedding,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerify_LockdownFlow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.enroll(t, "alice", aliceEmbedding)

	attempt := func() *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/api/v1/verify", map[string]interface{}{
			"identity": "alice",
			"sample":   impostorSample,
		})
	}

	assert.Equal(t, http.StatusUnauthorized, attempt().Code)
	assert.Equal(t, http.StatusUnauthorized, attempt().Code)

	rec := attempt()
	require.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Everything is refused while locked, registration included.
	rec = f.do(t, http.MethodPost, "/api/v1/identities", map[string]string{"name": "bob"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	f.clk.Advance(61 * time.Second)

	rec = f.do(t, http.MethodPost, "/api/v1/verify", map[string]interface{}{
		"identity": "alice",
		"sample":   aliceEmbedding,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerify_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.enroll(t, "alice", aliceEmbedding)

	good := map[string]interface{}{"identity": "alice", "sample": aliceEmbedding}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/verify", good).Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/verify", good)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	f.clk.Advance(61 * time.Second)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/verify", good).Code)
}

func TestVerify_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/verify", map[string]interface{}{
		"sample": aliceEmbedding,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", bytes.NewReader([]byte("{not json")))
	req.RemoteAddr = f.client
	out := httptest.NewRecorder()
	f.srv.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestChallenge_ReplayProtection(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.enroll(t, "alice", aliceEmbedding)

	rec := f.do(t, http.MethodPost, "/api/v1/challenge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var challenge struct {
		Nonce            string `json:"nonce"`
		ExpiresInSeconds int    `json:"expiresInSeconds"`
	}
	decode(t, rec, &challenge)
	require.NotEmpty(t, challenge.Nonce)
	assert.Equal(t, 60, challenge.ExpiresInSeconds)

	body := map[string]interface{}{
		"identity": "alice",
		"sample":   aliceEmbedding,
		"nonce":    challenge.Nonce,
	}
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/verify", body).Code)

	// Replaying the consumed nonce is rejected.
	rec = f.do(t, http.MethodPost, "/api/v1/verify", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var res struct {
		Outcome string `json:"outcome"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "REPLAY_DETECTED", res.Outcome)
}

func TestIdentify(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.enroll(t, "alice", aliceEmbedding)

	rec := f.do(t, http.MethodPost, "/api/v1/identify", map[string]interface{}{
		"sample": aliceEmbedding,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Outcome  string `json:"outcome"`
		Identity *struct {
			DisplayName string `json:"displayName"`
		} `json:"identity"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "ACCEPTED", res.Outcome)
	require.NotNil(t, res.Identity)
	assert.Equal(t, "alice", res.Identity.DisplayName)

	rec = f.do(t, http.MethodPost, "/api/v1/identify", map[string]interface{}{
		"sample": impostorSample,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/identify", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st struct {
		Locked    bool    `json:"locked"`
		Threshold float64 `json:"threshold"`
	}
	decode(t, rec, &st)
	assert.False(t, st.Locked)
	assert.Equal(t, 0.94, st.Threshold)
}

func TestSetThreshold(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/config/threshold", map[string]float64{"threshold": 0.9})
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Threshold float64 `json:"threshold"`
	}
	decode(t, rec, &res)
	assert.Equal(t, 0.9, res.Threshold)

	// The floor is enforced.
	rec = f.do(t, http.MethodPut, "/api/v1/config/threshold", map[string]float64{"threshold": 0.4})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogs(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 4; i++ {
		f.register(t, fmt.Sprintf("user-%d", i))
	}

	rec := f.do(t, http.MethodGet, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Events []struct {
			EventKind string `json:"eventKind"`
		} `json:"events"`
		Count int `json:"count"`
	}
	decode(t, rec, &res)
	assert.Equal(t, 4, res.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/logs?limit=2", nil)
	decode(t, rec, &res)
	assert.Equal(t, 2, res.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/logs?limit=oops", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteThreat(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.enroll(t, "alice", aliceEmbedding)

	rec := f.do(t, http.MethodPost, "/api/v1/threats/execute", map[string]string{
		"kind":   "BRUTE_FORCE",
		"target": "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Kind   string `json:"kind"`
		Probes int    `json:"probes"`
		Locked bool   `json:"locked"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "BRUTE_FORCE", res.Kind)
	assert.True(t, res.Locked)
	assert.Equal(t, 3, res.Probes)

	// The lockdown it caused is visible on the status endpoint.
	var st struct {
		Locked bool `json:"locked"`
	}
	statusRec := f.do(t, http.MethodGet, "/api/v1/status", nil)
	decode(t, statusRec, &st)
	assert.True(t, st.Locked)
}

func TestExecuteThreat_Validation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	rec := f.do(t, http.MethodPost, "/api/v1/threats/execute", map[string]string{
		"kind": "BRUTE_FORCE",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/threats/execute", map[string]string{
		"kind":   "PHISHING",
		"target": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/threats/execute", map[string]string{
		"kind":   "REPLAY",
		"target": "nobody",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Status string `json:"status"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "healthy", res.Status)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
