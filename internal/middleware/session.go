package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookieName            = "session_id"
	sessionKey        contextKey = "session_id"
	sessionTTL                   = 30 * 24 * time.Hour
)

// Session reads the session cookie, minting a new anonymous session id when
// none is present, and puts the id into the request context. The cookie is the
// only identity the service has: there are no accounts.
func Session(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sid string
			if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
				sid = c.Value
			} else {
				sid = "sess_" + uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(sessionTTL.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := context.WithValue(r.Context(), sessionKey, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey).(string); ok {
		return v
	}
	return ""
}
