package stores

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a challenge instance.
type State uint8

const (
	StateNone State = iota
	StateIssued
	StateConsumed
	StateExpired
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateIssued:
		return "issued"
	case StateConsumed:
		return "consumed"
	case StateExpired:
		return "expired"
	case StateLocked:
		return "locked"
	default:
		return "none"
	}
}

// Terminal reports whether no further verification can succeed.
func (s State) Terminal() bool {
	return s == StateConsumed || s == StateExpired || s == StateLocked
}

var (
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeExpired     = errors.New("challenge expired")
	ErrChallengeLocked      = errors.New("challenge attempts exceeded")
	ErrChallengeCooldown    = errors.New("challenge resend cooldown")
	ErrChallengeUnavailable = errors.New("challenge store unavailable")
)

// CooldownError is returned by Put when the prior instance was issued less
// than the cooldown ago.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrChallengeCooldown, e.RetryAfter)
}

func (e *CooldownError) Is(target error) bool { return target == ErrChallengeCooldown }

// ChallengeRecord is the persisted shape of a verification challenge. The
// plaintext code never reaches it; SecretHash is empty for channels whose
// secret lives elsewhere (TOTP).
type ChallengeRecord struct {
	ID          string
	Subject     string
	Channel     string
	SecretHash  [32]byte
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	State       State
}

// AttemptsRemaining is the number of further attempts the instance accepts.
func (r *ChallengeRecord) AttemptsRemaining() int {
	if r == nil || r.State != StateIssued {
		return 0
	}
	if left := r.MaxAttempts - r.Attempts; left > 0 {
		return left
	}
	return 0
}

// PutOptions controls replacement of the prior instance.
type PutOptions struct {
	// Cooldown rejects the put while now - prior.IssuedAt < Cooldown.
	Cooldown time.Duration
	// Retention keeps the record readable this long after ExpiresAt.
	Retention time.Duration
	Now       time.Time
}

// ChallengeStore is implemented by [RedisChallengeStore] and
// [MemoryChallengeStore].
type ChallengeStore interface {
	// Put stores rec as the only instance for its (subject, channel),
	// replacing any prior instance.
	Put(ctx context.Context, rec *ChallengeRecord, opts PutOptions) error
	// Get returns the current instance in any state.
	Get(ctx context.Context, subject, channel string) (*ChallengeRecord, error)
	// Reserve counts one verification attempt against the issued instance
	// and returns a snapshot including the new attempt count. Expired
	// instances transition to StateExpired without counting; instances at
	// their attempt limit transition to StateLocked.
	Reserve(ctx context.Context, subject, channel string, now time.Time) (*ChallengeRecord, error)
	// Consume marks instance id consumed if it is still issued and unexpired.
	Consume(ctx context.Context, subject, channel, id string, now time.Time) error
	// Burn locks the issued instance, if any, and reports whether it did.
	Burn(ctx context.Context, subject, channel string, now time.Time) (bool, error)
}

func challengeKey(prefix, subject, channel string) string {
	return prefix + ":" + channel + ":" + subject
}

func recordTTL(rec *ChallengeRecord, opts PutOptions) time.Duration {
	ttl := rec.ExpiresAt.Sub(opts.Now) + opts.Retention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
