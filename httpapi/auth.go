package httpapi

import (
	"net/http"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/middleware"
	"github.com/MrEthical07/goCred/policy"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionView struct {
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginView struct {
	Subject     string     `json:"subject"`
	MFARequired bool       `json:"mfa_required"`
	Method      string     `json:"method,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.MFARequired {
		writeOK(w, loginView{Subject: res.Subject, MFARequired: true, Method: string(res.Channel)})
		return
	}

	s.setSessionCookie(w, res.Session)
	exp := res.Session.Payload.ExpiresAt
	writeOK(w, loginView{Subject: res.Subject, ExpiresAt: &exp})
}

type loginVerifyRequest struct {
	Subject string `json:"subject"`
	Method  string `json:"method"`
	OTPCode string `json:"otp_code"`
}

func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req loginVerifyRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	ch, ok := parseMethod(req.Method, goCred.ChannelEmailOTP, goCred.ChannelTOTP)
	if !ok || strings.TrimSpace(req.Subject) == "" {
		s.writeValidation(w, r)
		return
	}

	res, err := s.engine.ConfirmLogin(r.Context(), req.Subject, ch, req.OTPCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, res.Session)
	writeOK(w, sessionView{Subject: res.Subject, ExpiresAt: res.Session.Payload.ExpiresAt})
}

// handleLogout always clears the cookie. An unknown or expired session is
// not an error.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := middleware.TokenFromRequest(r, s.engine.CookieName()); ok {
		if err := s.engine.Logout(r.Context(), token); err != nil && goCred.KindOf(err) == goCred.KindUnavailable {
			s.writeError(w, r, err)
			return
		}
	}
	s.clearSessionCookie(w)
	writeOK(w, nil)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromRequest(r, s.engine.CookieName())
	if !ok {
		s.writeError(w, r, goCred.ErrUnauthorized)
		return
	}

	grant, err := s.engine.RefreshSession(r.Context(), token, 0)
	if err != nil {
		if k := goCred.KindOf(err); k == goCred.KindStaleSubject || k == goCred.KindUnauthorized {
			s.clearSessionCookie(w)
		}
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, &grant)
	writeOK(w, sessionView{Subject: grant.Payload.Subject, ExpiresAt: grant.Payload.ExpiresAt})
}

func (s *Server) rejectSession(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil || goCred.KindOf(err) != goCred.KindUnavailable {
		err = goCred.ErrUnauthorized
	}
	s.writeError(w, r, err)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, grant *goCred.SessionGrant) {
	if grant == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.engine.CookieName(),
		Value:    grant.Token,
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		Expires:  grant.Payload.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.engine.CookieName(),
		Value:    "",
		Path:     "/",
		Domain:   s.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

type forgotRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword answers the same way whether or not the email is
// registered.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

type resetRequest struct {
	UID         string `json:"uid"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.engine.ConfirmPasswordReset(r.Context(), req.UID, req.Token, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		s.writeError(w, r, goCred.ErrUnauthorized)
		return
	}
	var req changePasswordRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.engine.ChangePassword(r.Context(), p.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

type strengthRequest struct {
	Password string `json:"password"`
}

type strengthView struct {
	policy.Strength
	Valid      bool               `json:"valid"`
	Violations []policy.Violation `json:"violations,omitempty"`
}

func (s *Server) handleStrength(w http.ResponseWriter, r *http.Request) {
	var req strengthRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	res := s.engine.ValidatePassword(req.Password)
	writeOK(w, strengthView{
		Strength:   s.engine.ScorePassword(req.Password),
		Valid:      res.Valid,
		Violations: res.Violations,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.writeError(w, r, goCred.ErrUnavailable)
		return
	}
	writeOK(w, map[string]string{"status": "ok"})
}
