package goCred

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/session"
	"go.uber.org/zap"
)

// IssueSession builds a session for claims and signs it for the cookie. A
// zero ttl uses Config.Session.TTL.
//
//	Docs: docs/session.md
func (e *Engine) IssueSession(ctx context.Context, claims session.Claims, ttl time.Duration) (SessionGrant, error) {
	if e == nil {
		return SessionGrant{}, ErrEngineNotReady
	}
	p, err := e.issuer.Issue(claims, ttl)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	token, err := e.codec.Encode(p)
	if err != nil {
		return SessionGrant{}, err
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, audit.Event{EventType: "session_issue", Subject: p.Subject, SessionID: p.ID, Success: true})
	return SessionGrant{Payload: p, Token: token}, nil
}

// IsValid reports whether now is before p.ExpiresAt. It does not consult
// the revocation list; use ValidateSession for cookies.
func (e *Engine) IsValid(p session.Payload) bool {
	if e == nil {
		return false
	}
	return e.issuer.IsValid(p)
}

// ValidateSession parses a session cookie and checks expiry and revocation.
// Every rejection is ErrUnauthorized.
func (e *Engine) ValidateSession(ctx context.Context, token string) (session.Payload, error) {
	if e == nil {
		return session.Payload{}, ErrEngineNotReady
	}
	p, err := e.codec.Decode(token)
	if err != nil {
		return session.Payload{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !e.issuer.IsValid(p) {
		return session.Payload{}, ErrUnauthorized
	}
	revoked, err := e.revocations.IsRevoked(ctx, p.ID)
	if err != nil {
		return session.Payload{}, unavailable(err)
	}
	if revoked {
		return session.Payload{}, ErrUnauthorized
	}
	return p, nil
}

// RefreshSession validates token and re-issues it with a fresh window. The
// subject is re-checked against the directory; a subject that no longer
// resolves fails with ErrStaleSubject and the session is revoked.
func (e *Engine) RefreshSession(ctx context.Context, token string, ttl time.Duration) (SessionGrant, error) {
	if e == nil {
		return SessionGrant{}, ErrEngineNotReady
	}
	p, err := e.ValidateSession(ctx, token)
	if err != nil {
		return SessionGrant{}, err
	}

	next, err := e.issuer.Refresh(ctx, p, ttl)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrStaleSubject):
			e.metricInc(MetricSessionStale)
			if rerr := e.revocations.Revoke(ctx, p.ID, p.ExpiresAt); rerr != nil {
				e.logger.Warn("stale session revoke failed", zap.String("subject", p.Subject), zap.Error(rerr))
			}
			e.emitAudit(ctx, audit.Event{EventType: "session_refresh", Subject: p.Subject, SessionID: p.ID, Error: err.Error()})
			return SessionGrant{}, err
		case errors.Is(err, session.ErrInvalidTTL):
			return SessionGrant{}, fmt.Errorf("%w: %v", ErrValidation, err)
		default:
			return SessionGrant{}, unavailable(err)
		}
	}

	signed, err := e.codec.Encode(next)
	if err != nil {
		return SessionGrant{}, err
	}
	e.metricInc(MetricSessionRefreshed)
	e.emitAudit(ctx, audit.Event{EventType: "session_refresh", Subject: next.Subject, SessionID: next.ID, Success: true})
	return SessionGrant{Payload: next, Token: signed}, nil
}

// Logout revokes the session behind token until its expiry.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	p, err := e.ValidateSession(ctx, token)
	if err != nil {
		return err
	}
	return e.RevokeSession(ctx, p)
}

// RevokeSession adds p.ID to the revocation list until p.ExpiresAt.
func (e *Engine) RevokeSession(ctx context.Context, p session.Payload) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if p.ID == "" {
		return ErrValidation
	}
	if err := e.revocations.Revoke(ctx, p.ID, p.ExpiresAt); err != nil {
		return unavailable(err)
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, audit.Event{EventType: "session_revoke", Subject: p.Subject, SessionID: p.ID, Success: true})
	return nil
}

// CookieName is the configured session cookie name.
func (e *Engine) CookieName() string {
	if e == nil {
		return ""
	}
	return e.config.Session.CookieName
}
