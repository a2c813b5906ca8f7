package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/internal/rate"
	"go.uber.org/zap"
)

// throttle counts each request against bucket for the client address.
func (s *Server) throttle(bucket string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := s.cfg.Throttle[bucket]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			wait, err := s.limiter.Allow(r.Context(), bucket, clientIP(r), rate.Rule{Limit: rule.Limit, Window: rule.Window})
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, rate.ErrRateLimited):
				secs := retrySeconds(wait)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, envelope{
					Error: &apiError{
						Code:    goCred.KindTooManyAttempts.String(),
						Message: goCred.PublicMessage(goCred.KindTooManyAttempts),
					},
					RetryAfter: secs,
				})
			default:
				s.logger.Error("throttle backend failed", zap.String("bucket", bucket), zap.Error(err))
				s.writeError(w, r, goCred.ErrUnavailable)
			}
		})
	}
}

// clientIP is the host part of RemoteAddr. With TrustProxy, chi's RealIP
// has already rewritten RemoteAddr from the forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
