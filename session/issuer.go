package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the session lifetime used when a caller passes zero.
const DefaultTTL = 24 * time.Hour

var (
	ErrInvalidClaims = errors.New("session claims missing subject")
	ErrInvalidTTL    = errors.New("session ttl must be positive")
	// ErrStaleSubject is returned by Refresh when the subject no longer
	// resolves in the directory.
	ErrStaleSubject = errors.New("session subject no longer valid")
)

// SubjectChecker re-verifies a subject. It returns found=false for subjects
// that no longer exist; err is reserved for lookup failures.
type SubjectChecker interface {
	SubjectExists(ctx context.Context, subject string) (bool, error)
}

// SubjectCheckerFunc adapts a function to [SubjectChecker].
type SubjectCheckerFunc func(ctx context.Context, subject string) (bool, error)

func (f SubjectCheckerFunc) SubjectExists(ctx context.Context, subject string) (bool, error) {
	return f(ctx, subject)
}

// Issuer builds session payloads.
type Issuer struct {
	checker    SubjectChecker
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures an [Issuer].
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithDefaultTTL overrides [DefaultTTL].
func WithDefaultTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.defaultTTL = ttl
		}
	}
}

// NewIssuer returns an Issuer. checker may be nil, in which case Refresh
// skips re-verification.
func NewIssuer(checker SubjectChecker, opts ...Option) *Issuer {
	i := &Issuer{
		checker:    checker,
		defaultTTL: DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a payload valid for ttl (DefaultTTL when zero).
func (i *Issuer) Issue(claims Claims, ttl time.Duration) (Payload, error) {
	if claims.Subject == "" {
		return Payload{}, ErrInvalidClaims
	}
	ttl, err := i.resolveTTL(ttl)
	if err != nil {
		return Payload{}, err
	}

	now := i.now()
	return Payload{
		ID:        uuid.NewString(),
		Subject:   claims.Subject,
		Email:     claims.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsValid reports whether now is before the payload's expiry.
func (i *Issuer) IsValid(p Payload) bool {
	return p.Subject != "" && i.now().Before(p.ExpiresAt)
}

// Refresh re-issues p with issuedAt=now and expiresAt=now+ttl. The subject
// and session ID are kept.
func (i *Issuer) Refresh(ctx context.Context, p Payload, ttl time.Duration) (Payload, error) {
	if p.Subject == "" {
		return Payload{}, ErrInvalidClaims
	}
	ttl, err := i.resolveTTL(ttl)
	if err != nil {
		return Payload{}, err
	}

	if i.checker != nil {
		ok, err := i.checker.SubjectExists(ctx, p.Subject)
		if err != nil {
			return Payload{}, fmt.Errorf("verify subject: %w", err)
		}
		if !ok {
			return Payload{}, ErrStaleSubject
		}
	}

	now := i.now()
	p.IssuedAt = now
	p.ExpiresAt = now.Add(ttl)
	return p, nil
}

func (i *Issuer) resolveTTL(ttl time.Duration) (time.Duration, error) {
	if ttl == 0 {
		return i.defaultTTL, nil
	}
	if ttl < 0 {
		return 0, ErrInvalidTTL
	}
	return ttl, nil
}
