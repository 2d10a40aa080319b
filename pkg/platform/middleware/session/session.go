// Package session makes sure every visitor carries a session token.
package session

import (
	"net/http"
	"time"

	"github.com/segmentio/ksuid"

	"pollster/pkg/platform/middleware/metadata"
	"pollster/pkg/requestcontext"
)

// cookieMaxAge keeps anonymous visitors recognisable across visits.
const cookieMaxAge = 365 * 24 * time.Hour

// Ensure mints a session token for visitors that sent none. The token is
// echoed in the session header and set as a cookie so the next request
// resolves to the same respondent. Run it after metadata.ClientMetadata.
func Ensure(secureCookie bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.SessionToken(ctx) != "" {
				next.ServeHTTP(w, r)
				return
			}
			token := ksuid.New().String()
			w.Header().Set(metadata.SessionHeader, token)
			http.SetCookie(w, &http.Cookie{
				Name:     metadata.SessionCookie,
				Value:    token,
				Path:     "/",
				MaxAge:   int(cookieMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionToken(ctx, token)))
		})
	}
}
