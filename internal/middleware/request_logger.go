package middleware

import (
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// anonymizeIP zeroes the last IPv4 octet or the lower half of an IPv6 address.
func anonymizeIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return "unknown_ip"
	}
	if ip.IsLoopback() {
		return "127.0.0.1"
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(64, 128)).String()
}

// RequestLogger logs one line per request and puts a request-scoped logger
// in the context for zerolog.Ctx.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := log.With().
			Str("component", "http").
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("remote_ip", anonymizeIP(r.RemoteAddr)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		started := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		event.
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("latency", time.Since(started)).
			Msg("request completed")
	})
}
