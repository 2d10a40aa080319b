// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	userID, ok := requestcontext.UserID(ctx)
//	token := requestcontext.SessionToken(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "Mozilla/5.0")
package requestcontext

import (
	"context"
	"time"

	id "pollster/pkg/domain"
)

type (
	userIDKey         struct{}
	respondentIDKey   struct{}
	verifiedKey       struct{}
	sessionTokenKey   struct{}
	clientIPKey       struct{}
	userAgentKey      struct{}
	acceptLanguageKey struct{}
	acceptEncodingKey struct{}
	referrerKey       struct{}
	entryPointKey     struct{}
	requestIDKey      struct{}
	requestTimeKey    struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyUserID         = userIDKey{}
	ContextKeyRespondentID   = respondentIDKey{}
	ContextKeyVerified       = verifiedKey{}
	ContextKeySessionToken   = sessionTokenKey{}
	ContextKeyClientIP       = clientIPKey{}
	ContextKeyUserAgent      = userAgentKey{}
	ContextKeyAcceptLanguage = acceptLanguageKey{}
	ContextKeyAcceptEncoding = acceptEncodingKey{}
	ContextKeyReferrer       = referrerKey{}
	ContextKeyEntryPoint     = entryPointKey{}
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Identity
// -----------------------------------------------------------------------------

// UserID returns the authenticated user ID. The second result is false for
// anonymous visitors.
func UserID(ctx context.Context) (id.UserID, bool) {
	userID, ok := ctx.Value(ContextKeyUserID).(id.UserID)
	if !ok || userID.IsNil() {
		return id.UserID{}, false
	}
	return userID, true
}

// WithUserID injects an authenticated user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// RespondentID returns the respondent resolved for this request.
func RespondentID(ctx context.Context) (id.RespondentID, bool) {
	respondentID, ok := ctx.Value(ContextKeyRespondentID).(id.RespondentID)
	if !ok || respondentID.IsNil() {
		return id.RespondentID{}, false
	}
	return respondentID, true
}

// WithRespondentID injects the resolved respondent ID into the context.
func WithRespondentID(ctx context.Context, respondentID id.RespondentID) context.Context {
	return context.WithValue(ctx, ContextKeyRespondentID, respondentID)
}

// SessionVerified reports whether the request proved it may act as the
// resolved respondent. It is false unless middleware said otherwise.
func SessionVerified(ctx context.Context) bool {
	verified, _ := ctx.Value(ContextKeyVerified).(bool)
	return verified
}

// WithSessionVerified records whether the session owns the respondent.
func WithSessionVerified(ctx context.Context, verified bool) context.Context {
	return context.WithValue(ctx, ContextKeyVerified, verified)
}

// SessionToken returns the visitor's session token, or "" if none was sent.
func SessionToken(ctx context.Context) string {
	if token, ok := ctx.Value(ContextKeySessionToken).(string); ok {
		return token
	}
	return ""
}

// WithSessionToken injects a session token into the context.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ContextKeySessionToken, token)
}

// EntryPoint returns the detected entry point, defaulting to web.
func EntryPoint(ctx context.Context) id.EntryPoint {
	if ep, ok := ctx.Value(ContextKeyEntryPoint).(id.EntryPoint); ok {
		return ep
	}
	return id.EntryWeb
}

// WithEntryPoint injects the entry point into the context.
func WithEntryPoint(ctx context.Context, ep id.EntryPoint) context.Context {
	return context.WithValue(ctx, ContextKeyEntryPoint, ep)
}

// -----------------------------------------------------------------------------
// Client metadata
// -----------------------------------------------------------------------------

func stringValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	return stringValue(ctx, ContextKeyClientIP)
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	return stringValue(ctx, ContextKeyUserAgent)
}

// AcceptLanguage retrieves the Accept-Language header value.
func AcceptLanguage(ctx context.Context) string {
	return stringValue(ctx, ContextKeyAcceptLanguage)
}

// AcceptEncoding retrieves the Accept-Encoding header value.
func AcceptEncoding(ctx context.Context) string {
	return stringValue(ctx, ContextKeyAcceptEncoding)
}

// Referrer retrieves the Referer header value.
func Referrer(ctx context.Context) string {
	return stringValue(ctx, ContextKeyReferrer)
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// WithNegotiation injects the Accept-Language and Accept-Encoding values.
func WithNegotiation(ctx context.Context, acceptLanguage, acceptEncoding string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyAcceptLanguage, acceptLanguage)
	ctx = context.WithValue(ctx, ContextKeyAcceptEncoding, acceptEncoding)
	return ctx
}

// WithReferrer injects the Referer header value.
func WithReferrer(ctx context.Context, referrer string) context.Context {
	return context.WithValue(ctx, ContextKeyReferrer, referrer)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	return stringValue(ctx, ContextKeyRequestID)
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts like workers, CLI, tests.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
