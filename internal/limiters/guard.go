package limiters

import (
	"context"
	"errors"
	"time"
)

// Outcome is what the caller observed for the attempt being recorded.
type Outcome uint8

const (
	// OutcomeNone only checks the ledger.
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "none"
	}
}

var (
	ErrGuardUnavailable = errors.New("lockout backend unavailable")
	ErrInvalidPolicy    = errors.New("invalid lockout policy")
)

// LockoutPolicy is the threshold applied to one action class.
type LockoutPolicy struct {
	MaxFailures  int           `yaml:"max_failures"`
	Window       time.Duration `yaml:"window"`
	LockDuration time.Duration `yaml:"lock_duration"`
}

func (p LockoutPolicy) validate() error {
	if p.MaxFailures <= 0 || p.Window <= 0 || p.LockDuration <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// LockoutState is the ledger for one (subject, action class).
type LockoutState struct {
	Failures       int
	FirstFailureAt time.Time
	LockedUntil    time.Time
}

// Decision is the guard's answer for one call.
type Decision struct {
	Allowed     bool
	Failures    int
	LockedUntil time.Time
	RetryAfter  time.Duration
}

// Guard is implemented by [RedisGuard] and [MemoryGuard].
type Guard interface {
	// CheckAndRecord applies outcome to the ledger and reports whether the
	// pair may proceed. While locked, outcomes are not recorded.
	CheckAndRecord(ctx context.Context, subject, class string, outcome Outcome, policy LockoutPolicy, now time.Time) (Decision, error)
	// State returns the current ledger, if any.
	State(ctx context.Context, subject, class string) (LockoutState, bool, error)
	// Reset drops the ledger.
	Reset(ctx context.Context, subject, class string) error
}

func ledgerKey(prefix, subject, class string) string {
	return prefix + ":" + class + ":" + subject
}

func lockedDecision(failures int, lockedUntil, now time.Time) Decision {
	return Decision{
		Allowed:     false,
		Failures:    failures,
		LockedUntil: lockedUntil,
		RetryAfter:  lockedUntil.Sub(now),
	}
}

// step is the shared transition used by the memory backend and mirrored by
// guardLua. It mutates st in place and reports whether the ledger should be
// deleted.
func step(st *LockoutState, outcome Outcome, policy LockoutPolicy, now time.Time) (Decision, bool) {
	if !st.LockedUntil.IsZero() && st.LockedUntil.After(now) {
		return lockedDecision(st.Failures, st.LockedUntil, now), false
	}

	drop := false
	if !st.LockedUntil.IsZero() || (!st.FirstFailureAt.IsZero() && now.Sub(st.FirstFailureAt) >= policy.Window) {
		*st = LockoutState{}
		drop = true
	}

	switch outcome {
	case OutcomeSuccess:
		*st = LockoutState{}
		return Decision{Allowed: true}, true
	case OutcomeFailure:
	default:
		return Decision{Allowed: true, Failures: st.Failures}, drop
	}

	st.Failures++
	if st.FirstFailureAt.IsZero() {
		st.FirstFailureAt = now
	}
	if st.Failures >= policy.MaxFailures {
		st.LockedUntil = now.Add(policy.LockDuration)
		return lockedDecision(st.Failures, st.LockedUntil, now), false
	}
	return Decision{Allowed: true, Failures: st.Failures}, false
}

// ledgerTTL keeps the ledger until both its window and its lock lapse.
func ledgerTTL(st LockoutState, policy LockoutPolicy, now time.Time) time.Duration {
	ttl := st.FirstFailureAt.Add(policy.Window).Sub(now)
	if lock := st.LockedUntil.Sub(now); lock > ttl {
		ttl = lock
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}
