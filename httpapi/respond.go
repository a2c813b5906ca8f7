package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/policy"
	"go.uber.org/zap"
)

type envelope struct {
	OK         bool      `json:"ok"`
	Data       any       `json:"data,omitempty"`
	Error      *apiError `json:"error,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"`
}

type apiError struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Violations []policy.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(kind goCred.ErrorKind) int {
	switch kind {
	case goCred.KindValidation, goCred.KindNotFound, goCred.KindExpired, goCred.KindInvalidCode:
		return http.StatusBadRequest
	case goCred.KindTooManyAttempts, goCred.KindLockedOut, goCred.KindResendCooldown:
		return http.StatusTooManyRequests
	case goCred.KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case goCred.KindInvalidCredentials, goCred.KindStaleSubject, goCred.KindUnauthorized:
		return http.StatusUnauthorized
	case goCred.KindDelivery:
		return http.StatusBadGateway
	case goCred.KindUnavailable, goCred.KindResetIncomplete:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err through the public envelope. Verification
// failures share one code so callers cannot tell them apart.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := goCred.KindOf(err)
	status := statusFor(kind)

	code := kind.String()
	switch kind {
	case goCred.KindNotFound, goCred.KindExpired, goCred.KindInvalidCode:
		code = "invalid_code"
	case goCred.KindLockedOut:
		code = goCred.KindTooManyAttempts.String()
	}

	body := envelope{Error: &apiError{Code: code, Message: goCred.PublicMessage(kind)}}
	var pe *goCred.PolicyError
	if errors.As(err, &pe) {
		body.Error.Violations = pe.Violations
	}
	if d, ok := goCred.RetryAfter(err); ok && d > 0 {
		body.RetryAfter = retrySeconds(d)
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

func (s *Server) writeValidation(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, goCred.ErrValidation)
}

func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// readJSON decodes the body into v, tolerating unknown fields. It writes
// the error response and returns false on failure.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		s.writeValidation(w, r)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeValidation(w, r)
		return false
	}
	return true
}
