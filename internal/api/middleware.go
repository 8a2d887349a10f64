package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/tradeledger/internal/config"
)

// ServiceTokenHeader carries the shared secret checked by the token filter.
const ServiceTokenHeader = "X-Service-Token"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// serviceTokenMiddleware rejects requests without the configured service
// token. Preflight requests and probes are always let through. The token is
// read per request so a config reload takes effect immediately.
func serviceTokenMiddleware(loader *config.Loader, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := loader.Config().Auth.ServiceToken
		if want == "" || r.Method == http.MethodOptions || isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(ServiceTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, http.StatusForbidden, "missing or invalid service token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isProbe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
