package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"clipflow/internal/logging"
	"clipflow/internal/metrics"
)

// responseWriter records the status code and byte count while passing
// Flush and Hijack through so streaming responses and websocket
// upgrades keep working.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("middleware: underlying writer does not support hijacking")
}

// Metrics records request counts, durations, and in-flight gauge per
// route. Paths are labeled by their mux route template so IDs do not
// explode the label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		rw := &responseWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		path := routePath(r)
		status := strconv.Itoa(rw.statusOrDefault())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
	})
}

// AccessLog writes one line per request. Health probes are noisy under
// orchestration, so logging them is opt-in.
func AccessLog(logHealthChecks bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rw, r)

			if !logHealthChecks && r.URL.Path == "/healthz" {
				return
			}

			logging.Info("%s %s %s %d %dB %s",
				clientAddr(r), r.Method, r.URL.Path,
				rw.statusOrDefault(), rw.written,
				time.Since(start).Round(time.Microsecond))
		})
	}
}

func (w *responseWriter) statusOrDefault() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// routePath prefers the matched route template over the raw URL so
// /api/video/stream/123 and /api/video/stream/456 share one label.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// clientAddr strips the ephemeral port, honoring X-Forwarded-For when a
// proxy is in front.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
