package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollster/pkg/platform/middleware/metadata"
	"pollster/pkg/requestcontext"
)

func TestEnsure(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.SessionToken(r.Context())
	})
	chain := metadata.ClientMetadata(Ensure(true)(next))

	t.Run("mints a token for new visitors", func(t *testing.T) {
		w := httptest.NewRecorder()
		chain.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

		require.NotEmpty(t, seen)
		_, err := ksuid.Parse(seen)
		require.NoError(t, err)
		assert.Equal(t, seen, w.Header().Get(metadata.SessionHeader))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, metadata.SessionCookie, cookies[0].Name)
		assert.Equal(t, seen, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
	})

	t.Run("keeps the header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(metadata.SessionHeader, "tok-header")
		w := httptest.NewRecorder()
		chain.ServeHTTP(w, req)

		assert.Equal(t, "tok-header", seen)
		assert.Empty(t, w.Header().Get(metadata.SessionHeader))
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("keeps the cookie token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: metadata.SessionCookie, Value: "tok-cookie"})
		chain.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "tok-cookie", seen)
	})
}
