package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/hiragana-park/kotoba/internal/eventlog"
	"github.com/hiragana-park/kotoba/internal/fallback"
	"github.com/hiragana-park/kotoba/internal/tts"
)

type RouterConfig struct {
	// JWT secret for admin endpoints. Admin routes reject everything when empty.
	AdminJWTSecret string

	// Per-client token bucket. Zero RPS disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// Maximum accepted request body size in bytes.
	MaxBodyBytes int64
}

// VersionChecker reports the engine version; used for readiness.
type VersionChecker interface {
	Version(ctx context.Context) (string, error)
}

// Deps are the components the router serves.
type Deps struct {
	// Synthesizer backs /synthesize and the WebSocket.
	Synthesizer *tts.Synthesizer
	// Extra synthesizers (e.g. a secondary engine) whose caches are managed
	// through the admin endpoints.
	Secondary []*tts.Synthesizer
	Chain     *fallback.Chain
	Engine    VersionChecker
	EventLog  *eventlog.Logger
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	synth    *tts.Synthesizer
	others   []*tts.Synthesizer
	chain    *fallback.Chain
	engine   VersionChecker
	eventLog *eventlog.Logger
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, deps Deps, logger *log.Logger) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger.WithPrefix("http"),
		synth:    deps.Synthesizer,
		others:   deps.Secondary,
		chain:    deps.Chain,
		engine:   deps.Engine,
		eventLog: deps.EventLog,
		mux:      http.NewServeMux(),
	}

	r.routes()

	var h http.Handler = r.mux
	if cfg.RateLimitRPS > 0 {
		h = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware(h)
	}
	return withSentryRecovery(withCORS(withRequestID(h)))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Synthesis
	r.mux.HandleFunc("POST /synthesize", r.handleSynthesize)
	r.mux.HandleFunc("POST /api/voicevox-tts", r.handleSynthesize)
	r.mux.HandleFunc("POST /speak", r.handleSpeak)
	r.mux.HandleFunc("GET /speakers", r.handleSpeakers)
	r.mux.HandleFunc("GET /ws/synthesize", r.handleSynthesizeWS)

	// Admin endpoints (requires admin token)
	r.mux.HandleFunc("GET /admin/cache", r.withAdmin(r.handleAdminCacheStats))
	r.mux.HandleFunc("DELETE /admin/cache", r.withAdmin(r.handleAdminCachePurge))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz reports whether the primary engine answers.
func (r *Router) handleReadyz(w http.ResponseWriter, req *http.Request) {
	if r.engine == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
	defer cancel()

	version, err := r.engine.Version(ctx)
	if err != nil {
		r.logger.Warn("engine not ready", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"engine_version": version,
		"event_log":      r.eventLog.Enabled(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-ID")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		scope.SetTag("request_id", eventlog.RequestID(req.Context()))
		sentry.CaptureException(err)
	})
}
