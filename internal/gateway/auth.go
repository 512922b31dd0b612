package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/replypass/replypass/internal/security"
)

// authMiddleware accepts a Bearer token or Basic credentials, compared in
// constant time. Remote addresses that keep failing are answered with 429
// until their failures leave the window, even if they then present valid
// credentials.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, failures *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)
			if failures.Blocked(ip) {
				emitAuthEvent(audit, security.EventRateLimit, r, "too many failed authentications")
				writeError(w, http.StatusTooManyRequests, "too many failed authentications")
				return
			}

			if method, ok := authenticate(cfg, r); ok {
				emitAuthEvent(audit, security.EventAuthSuccess, r, method)
				next.ServeHTTP(w, r)
				return
			}

			detail := "invalid credentials"
			if r.Header.Get("Authorization") == "" {
				detail = "missing authorization header"
			}
			_ = failures.Allow(ip)
			emitAuthEvent(audit, security.EventAuthFailure, r, detail)
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func authenticate(cfg AuthConfig, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if cfg.BearerToken != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && constantTimeEqual(token, cfg.BearerToken) {
			return "bearer", true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
			return "basic", true
		}
	}
	return "", false
}

func emitAuthEvent(audit *security.AuditLogger, typ security.EventType, r *http.Request, detail string) {
	audit.Log(security.AuditEvent{
		Type:       typ,
		RemoteAddr: r.RemoteAddr,
		Detail:     detail,
		Metadata:   map[string]string{"method": r.Method, "path": r.URL.Path},
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
