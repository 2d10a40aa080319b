// Package metadata extracts visitor signals from the request into the context.
package metadata

import (
	"net/http"
	"strings"

	id "pollster/pkg/domain"
	"pollster/pkg/requestcontext"
)

const (
	// SessionHeader carries the visitor session token for API and bot clients.
	SessionHeader = "X-Session-Token"
	// SessionCookie carries the visitor session token for browsers.
	SessionCookie = "pollster_session"
	// TelegramInitDataHeader is set by the Telegram WebApp bridge.
	TelegramInitDataHeader = "X-Telegram-Init-Data"
	// EntryPointHeader lets first-party clients declare their entry point.
	EntryPointHeader = "X-Entry-Point"
)

// ClientMetadata extracts client IP, User-Agent, negotiation headers, referrer,
// session token and entry point and adds them to the context. The client IP
// is the connection's remote address; forwarding headers are ignored.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return Middleware(false)(next)
}

// Middleware is ClientMetadata with a choice of client IP source. With
// trustProxyHeaders set, X-Forwarded-For and X-Real-IP are honored; enable it
// only behind a proxy that overwrites them, since clients can send any value.
func Middleware(trustProxyHeaders bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = requestcontext.WithClientMetadata(ctx, ClientIPFromRequest(r, trustProxyHeaders), r.Header.Get("User-Agent"))
			ctx = requestcontext.WithNegotiation(ctx, r.Header.Get("Accept-Language"), r.Header.Get("Accept-Encoding"))
			ctx = requestcontext.WithReferrer(ctx, r.Header.Get("Referer"))
			ctx = requestcontext.WithEntryPoint(ctx, EntryPointFromRequest(r))
			if token := SessionTokenFromRequest(r); token != "" {
				ctx = requestcontext.WithSessionToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionTokenFromRequest returns the session token from the header, falling
// back to the session cookie.
func SessionTokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// EntryPointFromRequest detects how the visitor reached us.
func EntryPointFromRequest(r *http.Request) id.EntryPoint {
	if declared := id.EntryPoint(strings.ToLower(strings.TrimSpace(r.Header.Get(EntryPointHeader)))); declared.IsValid() {
		return declared
	}
	if r.Header.Get(TelegramInitDataHeader) != "" {
		return id.EntryTelegramWebApp
	}
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	switch {
	case strings.Contains(ua, "telegrambot"):
		return id.EntryTelegramBot
	case strings.Contains(ua, "telegram"):
		return id.EntryTelegramWebApp
	}
	return id.EntryWeb
}

// ClientIPFromRequest extracts the client IP from the request. Proxy headers
// are consulted only when trustProxyHeaders is set.
func ClientIPFromRequest(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...); the first is the client.
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// RemoteAddr is "ip:port" or "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return ""
}
