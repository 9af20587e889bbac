package logging

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// quietPaths are polled by probes and scrapers; they log at debug level so
// they don't drown out real traffic.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLogger returns a chi middleware that logs each request once it has
// been served, with method, path, status, latency, client address and the
// request id set by middleware.RequestID. Server errors log at error level,
// client errors at warn and everything else at info.
func RequestLogger(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			latency := time.Since(start)
			if latency > time.Minute {
				latency = latency.Truncate(time.Second)
			} else {
				latency = latency.Truncate(time.Millisecond)
			}

			status := ww.Status()
			if status == 0 {
				// Handler wrote nothing; net/http sends 200.
				status = http.StatusOK
			}

			fields := log.Fields{
				"status":     status,
				"latency_ms": latency.Milliseconds(),
				"client_ip":  r.RemoteAddr,
				"method":     r.Method,
				"path":       r.URL.Path,
				"bytes":      ww.BytesWritten(),
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				fields["request_id"] = id
			}
			if ua := r.UserAgent(); ua != "" {
				if len(ua) > 180 {
					ua = ua[:180] + "..."
				}
				fields["user_agent"] = ua
			}

			line := fmt.Sprintf("%3d | %13v | %-7s %q", status, latency, r.Method, r.URL.Path)
			entry := logger.WithFields(fields)
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error(line)
			case status >= http.StatusBadRequest:
				entry.Warn(line)
			case quietPaths[r.URL.Path]:
				entry.Debug(line)
			default:
				entry.Info(line)
			}
		})
	}
}
