package httpapi

import (
	"net/http"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
)

// parseMethod maps the wire "method" to a channel. "email" is accepted as
// shorthand for email-otp.
func parseMethod(method string, allowed ...goCred.Channel) (goCred.Channel, bool) {
	m := strings.ToLower(strings.TrimSpace(method))
	if m == "email" {
		m = string(goCred.ChannelEmailOTP)
	}
	ch, err := goCred.ParseChannel(m)
	if err != nil {
		return "", false
	}
	for _, a := range allowed {
		if a == ch {
			return ch, true
		}
	}
	return "", false
}

type verifyRequest struct {
	Subject string `json:"subject"`
	Method  string `json:"method"`
	OTPCode string `json:"otp_code"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	ch, ok := parseMethod(req.Method, goCred.ChannelEmailOTP, goCred.ChannelTOTP)
	if !ok || strings.TrimSpace(req.Subject) == "" {
		s.writeValidation(w, r)
		return
	}

	if _, err := s.engine.VerifyChallenge(r.Context(), req.Subject, ch, req.OTPCode); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, verifyResponse{Verified: true})
}

type resendRequest struct {
	Subject string `json:"subject"`
	Method  string `json:"method"`
}

type challengeView struct {
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	ch, ok := parseMethod(req.Method, goCred.ChannelEmailOTP)
	if !ok || strings.TrimSpace(req.Subject) == "" {
		s.writeValidation(w, r)
		return
	}

	h, err := s.engine.ResendChallenge(r.Context(), req.Subject, ch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, challengeView{Method: string(ch), ExpiresAt: h.ExpiresAt})
}

type statusView struct {
	Method            string     `json:"method"`
	State             string     `json:"state"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	ResendAvailable   bool       `json:"resend_available"`
	ResendInSeconds   int        `json:"resend_in_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// Only channels a caller can also resend are readable here; a reset
	// record exists only for real accounts.
	ch, ok := parseMethod(q.Get("method"), goCred.ChannelEmailOTP)
	subject := strings.TrimSpace(q.Get("subject"))
	if !ok || subject == "" {
		s.writeValidation(w, r)
		return
	}

	st, err := s.engine.ChallengeStatus(r.Context(), subject, ch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view := statusView{
		Method:            string(st.Channel),
		State:             st.State,
		AttemptsRemaining: st.AttemptsRemaining,
		ResendAvailable:   st.ResendAvailable,
	}
	if !st.ExpiresAt.IsZero() {
		exp := st.ExpiresAt
		view.ExpiresAt = &exp
	}
	if !st.ResendAvailable && !st.ResendAvailableAt.IsZero() {
		view.ResendInSeconds = retrySeconds(time.Until(st.ResendAvailableAt))
	}
	writeOK(w, view)
}
