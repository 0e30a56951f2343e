package server

import "net/http"

// PoweredByMiddleware sets X-Powered-By on every response.
func PoweredByMiddleware(value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Powered-By", value)
			next.ServeHTTP(w, r)
		})
	}
}
