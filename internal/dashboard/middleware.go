package dashboard

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/ratelimit"
)

// ParseTrustedProxies parses proxy addresses or CIDR prefixes.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
	}
	return out, nil
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address of the request. X-Forwarded-For is only
// consulted when the peer is a trusted proxy; the rightmost hop that is not
// itself trusted is the client.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = strings.Trim(r.RemoteAddr, "[]")
	}
	if len(trusted) == 0 || !isTrusted(peer, trusted) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// requestLogger logs one line per request; the level follows the status.
func requestLogger(logger zerolog.Logger, trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			var ev *zerolog.Event
			switch {
			case rw.statusCode >= 500:
				ev = logger.Error()
			case rw.statusCode >= 400:
				ev = logger.Warn()
			default:
				ev = logger.Info()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", rw.statusCode).
				Dur("duration", time.Since(start)).
				Str("client_ip", clientIP(r, trusted)).
				Int64("bytes_written", rw.bytesWritten)
			if id := middleware.GetReqID(r.Context()); id != "" {
				ev.Str("request_id", id)
			}
			ev.Msg("http request")
		})
	}
}

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// allowVerify consumes one verification from the client's budget. When the
// budget is spent it writes Retry-After and returns the check result.
func (s *Server) allowVerify(w http.ResponseWriter, r *http.Request) (ratelimit.CheckResult, bool) {
	res := s.limiter.Allow(clientIP(r, s.cfg.TrustedProxies))
	if !res.Exceeded {
		return res, true
	}
	secs := int(res.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	s.cfg.Logger.Warn().Str("client_ip", res.Key).Int("limit", res.Limit).Msg("verification rate limit exceeded")
	return res, false
}

// limitVerify rejects requests from clients over their verification budget.
func (s *Server) limitVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if res, ok := s.allowVerify(w, r); !ok {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: res.Reason, Kind: "client_rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
