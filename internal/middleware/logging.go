package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/housemate/internal/metrics"
)

// responseRecorder captures the status code and body size.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// probePaths are polled by load balancers and scrapers; successful hits
// log at debug.
var probePaths = map[string]bool{"/health": true, "/metrics": true}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case probePaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// RequestLogger logs one line per request and records it in m. Server
// errors log at error, client errors at warn.
func RequestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			m.ObserveRequest(r.Method, rec.status, elapsed)

			logger.LogAttrs(r.Context(), requestLevel(r.URL.Path, rec.status), "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", elapsed),
				slog.String("remote", RealIP(r)),
			)
		})
	}
}
