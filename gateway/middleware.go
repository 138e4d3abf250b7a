package gateway

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sourcelane/gateway/apperr"
	"github.com/sourcelane/gateway/config"
	"github.com/sourcelane/gateway/internal/ctxkeys"
	"github.com/sourcelane/gateway/internal/ratelimit"
	"github.com/sourcelane/gateway/internal/sanitize"
	"github.com/sourcelane/gateway/observability"
)

// middleware matches cmd/agentflow/middleware.go's Middleware/Chain pair.
type middleware func(http.Handler) http.Handler

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// recovery matches cmd/agentflow/middleware.go's Recovery.
func recovery(logger *zap.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
					writeAppError(w, apperr.New(apperr.KindInternal, "internal server error"), "", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// trustedHosts implements §4.10's outermost stage: reject requests whose
// Host header isn't in the configured allowlist. Empty allowed means no
// restriction (local development).
func trustedHosts(allowed []string) middleware {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		allowedSet[h] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowedSet) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			host := r.Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			if _, ok := allowedSet[host]; !ok {
				writeAppError(w, apperr.New(apperr.KindValidation, "untrusted host"), "", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// jwtAuth gates every request behind a Bearer JWT when cfg.Enabled is set.
// Disabled by default (cfg.Enabled == false) since most deployments sit
// behind an upstream gateway that already terminates auth.
func jwtAuth(cfg config.AuthConfig, logger *zap.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				writeAppError(w, apperr.New(apperr.KindValidation, "missing bearer token"), "", logger)
				return
			}
			_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, apperr.New(apperr.KindValidation, "unexpected signing method")
				}
				return []byte(cfg.JWTSecretKey), nil
			})
			if err != nil {
				writeAppError(w, apperr.New(apperr.KindValidation, "invalid or expired token").WithCause(err), "", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestSizeLimit caps the request body at maxBytes (§4.10 "request-size
// limit (10 MB)").
func requestSizeLimit(maxBytes int64) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit wraps internal/ratelimit.Limiter, matching
// cmd/agentflow/middleware.go's RateLimiter idiom of keying on the caller's
// IP and recording a metric on block.
func rateLimit(limiter *ratelimit.Limiter, metrics *observability.Metrics) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if !limiter.Allow(key) {
				if metrics != nil {
					metrics.RateLimitBlocksTotal.WithLabelValues().Inc()
				}
				writeAppError(w, apperr.New(apperr.KindRateLimited, "rate limit exceeded"), "", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// contentSanitizer implements §4.10's content sanitizer stage: it extracts
// the query (from the JSON body's "query" field for POST, or the "query"
// URL parameter for GET), runs it through internal/sanitize, rejects
// injection attempts and over-length queries, and otherwise passes the
// request through unmodified (handlers re-read the body/query themselves).
func contentSanitizer(sanitizer *sanitize.Sanitizer, metrics *observability.Metrics) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, err := extractQuery(r)
			if err != nil {
				writeAppError(w, apperr.New(apperr.KindValidation, "malformed request body"), "", nil)
				return
			}
			if query == "" {
				next.ServeHTTP(w, r)
				return
			}
			result := sanitizer.Check(query)
			if result.TooLong {
				writeAppError(w, apperr.New(apperr.KindValidation, "query exceeds maximum length"), "", nil)
				return
			}
			if result.InjectionFound {
				if metrics != nil {
					metrics.InjectionAttemptsTotal.WithLabelValues().Inc()
				}
				writeAppError(w, apperr.New(apperr.KindValidation, "query rejected: suspected injection"), "", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractQuery reads the query text without consuming it for the
// downstream handler: GET requests carry it as a URL parameter; POST
// requests carry it in the JSON body, which is peeked and then restored
// onto r.Body.
func extractQuery(r *http.Request) (string, error) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("query"), nil
	}
	if r.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", nil
	}
	return gjson.GetBytes(body, "query").String(), nil
}

// traceInjector implements §4.10's trace-ID injector: stamps a trace ID
// onto the request context and the X-Trace-ID response header.
func traceInjector() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = generateTraceID()
			}
			w.Header().Set("X-Trace-ID", traceID)
			ctx := ctxkeys.WithTraceID(r.Context(), traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func generateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// securityHeaders implements §4.10's security-headers writer / spec.md §6's
// header list, grounded on cmd/agentflow/middleware.go's SecurityHeaders.
func securityHeaders() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", "default-src 'self'")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// cors matches cmd/agentflow/middleware.go's CORS: secure by default. When
// allowedOrigins is empty no CORS headers are set and preflight OPTIONS
// requests carrying an Origin are rejected with 403; other cross-origin
// requests pass through without CORS headers.
func cors(allowedOrigins []string) middleware {
	allowedSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowedSet[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if len(allowedSet) == 0 {
				if origin != "" && r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
			} else if _, ok := allowedSet[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger matches cmd/agentflow/middleware.go's RequestLogger.
func requestLogger(logger *zap.Logger, metrics *observability.Metrics) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", elapsed),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if metrics != nil {
				path := normalizePath(r.URL.Path)
				class := statusClass(rw.statusCode)
				metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, class).Inc()
				metrics.HTTPRequestDurationMS.WithLabelValues(r.Method, path).Observe(float64(elapsed.Milliseconds()))
				if rw.statusCode >= 500 {
					metrics.HTTPErrorsTotal.WithLabelValues(r.Method, path, class).Inc()
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses path parameters into a fixed label set so the
// metrics cardinality stays bounded, matching
// cmd/agentflow/middleware.go's normalizePath.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/search"):
		return "/search"
	case strings.HasPrefix(path, "/stream/search"):
		return "/stream/search"
	case strings.HasPrefix(path, "/guided-prompt"):
		return "/guided-prompt/refine"
	case strings.HasPrefix(path, "/health/providers"):
		return "/health/providers"
	case strings.HasPrefix(path, "/health"):
		return "/health"
	case strings.HasPrefix(path, "/warmup"):
		return "/warmup"
	case strings.HasPrefix(path, "/metrics"):
		return "/metrics"
	default:
		return "other"
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
