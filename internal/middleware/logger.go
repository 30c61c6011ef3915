package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"adminpanel/internal/infra/geoip"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Logger writes one structured line per request. When geo is non-nil the
// caller's country is added.
func Logger(l zerolog.Logger, geo geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			slot := &callerSlot{}
			r = r.WithContext(context.WithValue(r.Context(), callerSlotKey{}, slot))
			next.ServeHTTP(rw, r)

			var evt *zerolog.Event
			switch {
			case rw.status >= 500:
				evt = l.Error()
			case rw.status >= 400:
				evt = l.Warn()
			default:
				evt = l.Info()
			}
			ip := clientIP(r)
			evt = evt.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Int("bytes", rw.bytes).
				Dur("duration", time.Since(start)).
				Str("ip", ip)
			if rid := RequestIDFromContext(r.Context()); rid != "" {
				evt = evt.Str("request_id", rid)
			}
			if slot.caller.ID != "" {
				evt = evt.Str("caller", slot.caller.ID)
			}
			if geo != nil {
				if country, err := geo.CountryCode(ip); err == nil && country != "" {
					evt = evt.Str("country", country)
				}
			}
			evt.Msg("http request")
		})
	}
}
