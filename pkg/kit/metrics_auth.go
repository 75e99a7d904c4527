package kit

import (
	"crypto/subtle"
	"net/http"
)

// MetricsAuth guards scrape endpoints with a static bearer token. An empty
// token forbids every request.
func MetricsAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := BearerToken(r)
			if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteError(w, r, http.StatusForbidden, "forbidden", "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
