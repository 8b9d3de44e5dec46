package middlewares

import "net/http"

// WithNoStore agrega Cache-Control: no-store. Lo usan las rutas de auth y las
// lecturas de proveedor.
func WithNoStore() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
