package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"pollster/pkg/requestcontext"
)

// Header is echoed back on every response.
const Header = "X-Request-ID"

// Middleware propagates an incoming request ID or mints a new one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), reqID)))
	})
}
