// Package http provides the HTTP transport layer for WallCue.
//
// Routes (Go 1.22+ method-qualified patterns):
//
//	GET    /health
//	GET    /messages
//	POST   /messages
//	GET    /messages/{id}
//	PATCH  /messages/{id}
//	DELETE /messages/{id}
//	POST   /messages/{id}/dispatch
//	POST   /clear
//	POST   /autocycle/start
//	POST   /autocycle/stop
//	GET    /settings
//	PUT    /settings
//	POST   /sync          (force full queue snapshot to peers)
//	GET    /sync          (WebSocket upgrade for peer devices)
//	GET    /metrics
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rcalder/wallcue/internal/config"
	"github.com/rcalder/wallcue/internal/dispatch"
	"github.com/rcalder/wallcue/internal/metrics"
	"github.com/rcalder/wallcue/internal/store"
	wsync "github.com/rcalder/wallcue/internal/sync"
)

// Server wraps the stdlib HTTP server with WallCue route wiring.
type Server struct {
	inner *http.Server
}

// New builds a Server. peerWS is the hub's upgrade handler and may be nil
// when peer sync is disabled; rec likewise.
func New(
	st *store.Store,
	disp *dispatch.Dispatcher,
	wall WallConn,
	rec *wsync.Reconciler,
	peerWS http.Handler,
	cfg *config.Config,
	deviceID string,
	reg *metrics.Registry,
) *Server {
	h := &Handler{store: st, disp: disp, wall: wall, rec: rec, deviceID: deviceID}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", h.health)

	// Messages
	mux.HandleFunc("GET /messages", h.listMessages)
	mux.HandleFunc("POST /messages", h.addMessage)
	mux.HandleFunc("GET /messages/{id}", h.getMessage)
	mux.HandleFunc("PATCH /messages/{id}", h.editMessage)
	mux.HandleFunc("DELETE /messages/{id}", h.cancelMessage)
	mux.HandleFunc("POST /messages/{id}/dispatch", h.dispatchMessage)
	mux.HandleFunc("POST /clear", h.clearAll)

	// Auto-cycle
	mux.HandleFunc("POST /autocycle/start", h.startAutoCycle)
	mux.HandleFunc("POST /autocycle/stop", h.stopAutoCycle)

	// OSC settings
	mux.HandleFunc("GET /settings", h.getSettings)
	mux.HandleFunc("PUT /settings", h.putSettings)

	// Peer sync
	mux.HandleFunc("POST /sync", h.forceSync)
	if peerWS != nil {
		mux.Handle("GET /sync", peerWS)
	}

	// Metrics (Prometheus text format)
	if cfg.Metrics.Enabled && reg != nil {
		mux.Handle("GET /metrics", reg.Handler())
	}

	// Build middleware chain: cors → body cap → metrics → logging → auth → rate-limit
	var handler http.Handler = mux
	handler = chain(handler,
		CORSMiddleware,
		MaxBodyMiddleware,
		MetricsMiddleware(reg),
		LoggingMiddleware,
		AuthMiddleware(cfg.Auth.APIKey, cfg.Auth.Enabled),
		RateLimitMiddleware(100, 200),
	)

	return &Server{
		inner: &http.Server{
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed http.Handler (useful for testing).
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe starts the server on the given address (e.g. ":8080").
// It returns when the server stops or encounters an error.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	return s.inner.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
