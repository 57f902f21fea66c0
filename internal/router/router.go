package router

import (
	"net/http"

	"github.com/biogate/biogate/internal/handler"
	"github.com/biogate/biogate/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (no rate limiting applies here)
	mux.HandleFunc("GET /health", h.Health)

	// API v1 routes
	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"BioGate API v1","version":"0.1.0"}`))
	})

	// Identity lifecycle
	mux.HandleFunc("POST /api/v1/identities", h.Register)
	mux.HandleFunc("POST /api/v1/identities/{name}/enroll", h.Enroll)

	// Verification pipeline. Rate limiting lives inside the decision engine,
	// keyed by source origin, so no limiter middleware wraps these routes.
	mux.HandleFunc("POST /api/v1/verify", h.Verify)
	mux.HandleFunc("POST /api/v1/identify", h.Identify)
	mux.HandleFunc("POST /api/v1/challenge", h.Challenge)

	// Operator surface
	mux.HandleFunc("GET /api/v1/logs", h.Logs)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("PUT /api/v1/config/threshold", h.SetThreshold)
	mux.HandleFunc("POST /api/v1/threats/execute", h.ExecuteThreat)

	// Apply middleware stack
	var root http.Handler = mux

	// CORS (configure allowed origins based on environment)
	root = mw.CORS([]string{"http://localhost:3000", "http://localhost:5173"})(root)

	// Security headers
	root = mw.SecurityHeaders(root)

	// Request logging
	root = mw.Logger(root)

	// Timing
	root = mw.Timing(root)

	// Request ID
	root = mw.RequestID(root)

	// Panic recovery (outermost)
	root = mw.Recover(root)

	return root
}
