package middleware

import (
	"context"
	"net/http"

	"github.com/aruniapsara/DrapeStudio/internal/infra/geoip"
)

const countryKey contextKey = "client_country"

// Geo resolves the client IP to an ISO country code and stores it in the
// request context for usage attribution. A nil resolver disables the lookup.
func Geo(resolver geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			code, err := resolver.CountryCode(clientIPForRateLimit(r))
			if err == nil && code != "" {
				r = r.WithContext(context.WithValue(r.Context(), countryKey, code))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(countryKey).(string); ok {
		return v
	}
	return ""
}
