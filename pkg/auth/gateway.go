package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"retrospect/pkg/logger"
	"retrospect/pkg/logging"
	"retrospect/pkg/telemetry"
	"retrospect/pkg/utils"
)

// SecConfig is the gateway configuration. An empty APIKeys set leaves the
// server open, which is the expected setup for personal localhost use.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	APIKeys        map[string]struct{}
}

// Gateway wraps the handler chain with CORS, optional IP whitelisting,
// optional API keys, per-key/IP rate limiting and a read-only method gate.
// The server never mutates the archive, so anything beyond GET/HEAD/OPTIONS
// is rejected outright.
func Gateway(cfg SecConfig) func(http.Handler) http.Handler {
	// rate limiters keyed by api key or remote ip
	limiters := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// log request (redacts sensitive headers)
			logging.LogRequest(r)

			// stamp a request id for correlation across logs and telemetry
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
				r.Header.Set("X-Request-ID", reqID)
			}
			w.Header().Set("X-Request-ID", reqID)

			// cors preflight
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,X-API-Key,X-Debug-Telemetry")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			// read-only method gate
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Allow", "GET, HEAD, OPTIONS")
				utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
				logger.Warn("request_blocked", "reason", "write_method", "method", r.Method, "path", r.URL.Path)
				return
			}

			// ip whitelist
			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				logger.Debug("ip_check", "ip", ip)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					utils.JSONError(w, http.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					return
				}
			}

			// allow unauthenticated health checks for probes
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			// api key check, only when keys are configured
			authSpan := telemetry.StartSpan(r.Context(), "auth.authenticate")
			key, hasKey := requestKey(r)
			authorized := len(cfg.APIKeys) == 0
			if !authorized && hasKey {
				_, authorized = cfg.APIKeys[key]
			}
			authSpan()
			if !authorized {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}

			// rate limiting keyed by api key, falling back to client ip
			limKey := key
			if limKey == "" {
				limKey = clientIP(r)
			}
			rlSpan := telemetry.StartSpan(r.Context(), "auth.rate_limit")
			allowed := limiters.Allow(limKey)
			rlSpan()
			if !allowed {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "has_api_key", hasKey, "path", r.URL.Path)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

// requestKey extracts an API key from Authorization: Bearer or X-API-Key.
func requestKey(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		if key := strings.TrimSpace(auth[7:]); key != "" {
			return key, true
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}
	return "", false
}
