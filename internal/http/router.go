package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/healthmatters/internal/service/auth"
	"github.com/splax/healthmatters/internal/service/labs"
	"github.com/splax/healthmatters/internal/service/profile"
)

// Options carries the router's dependencies.
type Options struct {
	Logger         *slog.Logger
	Auth           auth.Service
	Profiles       profile.Service
	Labs           labs.Service
	Limiter        RateLimiter
	Cookie         CookieConfig
	MaxUploadBytes int64
	StaticDir      string
	DBHealth       func(context.Context) error
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux            *http.ServeMux
	logger         *slog.Logger
	auth           auth.Service
	profiles       profile.Service
	labs           labs.Service
	limiter        RateLimiter
	cookie         CookieConfig
	maxUploadBytes int64
	staticDir      string
	dbHealth       func(context.Context) error
	metricsOnce    sync.Once
	metrics        *routerMetrics
}

const (
	rateWindowDefault    = time.Minute
	rateLimitRegister    = 5
	rateLimitLogin       = 12
	rateLimitResetSend   = 5
	rateLimitResetVerify = 10
	rateLimitUserRead    = 120
	rateLimitUserWrite   = 60
	rateLimitUpload      = 10
	healthCheckTimeout   = 2 * time.Second
	multipartOverhead    = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(opts Options) *Router {
	r := &Router{
		mux:            http.NewServeMux(),
		logger:         opts.Logger,
		auth:           opts.Auth,
		profiles:       opts.Profiles,
		labs:           opts.Labs,
		limiter:        opts.Limiter,
		cookie:         opts.Cookie,
		maxUploadBytes: opts.MaxUploadBytes,
		staticDir:      strings.TrimSpace(opts.StaticDir),
		dbHealth:       opts.DBHealth,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.cookie.Name == "" {
		r.cookie.Name = "hm.sid"
	}
	if r.cookie.TTL <= 0 {
		r.cookie.TTL = 24 * time.Hour
	}
	if r.maxUploadBytes <= 0 {
		r.maxUploadBytes = 5 << 20
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/api/register", r.audit("register", r.withRateLimit("register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/api/login", r.audit("login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/api/logout", r.audit("logout", r.handleLogout))
	r.mux.HandleFunc("/api/user", r.audit("user", r.sessionRate("user", rateLimitUserRead, rateLimitUserWrite, r.handleCurrentUser)))
	r.mux.HandleFunc("/api/reset-password", r.audit("reset_password", r.withRateLimit("reset_password", rateLimitResetSend, rateWindowDefault, rateLimitKeyIP, r.handleResetRequest)))
	r.mux.HandleFunc("/api/reset-password/verify", r.audit("reset_password_verify", r.withRateLimit("reset_password_verify", rateLimitResetVerify, rateWindowDefault, rateLimitKeyIP, r.handleResetVerify)))

	r.mux.HandleFunc("/api/health-profile", r.audit("health_profile", r.sessionRate("health_profile", rateLimitUserRead, rateLimitUserWrite, r.handleHealthProfile)))
	r.mux.HandleFunc("/api/health-profile/bmi", r.audit("health_profile_bmi", r.sessionRate("health_profile_bmi", rateLimitUserRead, rateLimitUserWrite, r.handleBMI)))
	r.mux.HandleFunc("/api/lab-results", r.audit("lab_results", r.sessionRate("lab_results", rateLimitUserRead, rateLimitUpload, r.handleLabResults)))
	r.mux.HandleFunc("/api/lab-results/", r.audit("lab_result", r.sessionRate("lab_result", rateLimitUserRead, rateLimitUserWrite, r.handleLabResultSubroutes)))
	r.mux.HandleFunc("/api/health-tips", r.audit("health_tips", r.sessionRate("health_tips", rateLimitUserRead, rateLimitUserWrite, r.handleHealthTips)))

	r.mux.HandleFunc("/api/", r.audit("api_not_found", func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) }))
	r.mux.Handle("/", r.staticHandler())
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := remoteIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
			fields = append(fields, "forwarded_for", forwarded)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := sessionInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.User.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// remoteIP is the peer address of the connection. Forwarding headers are client-supplied and
// never used in its place.
func remoteIP(req *http.Request) string {
	addr := strings.TrimSpace(req.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeMessage(w, http.StatusNotFound, "not found")
}
