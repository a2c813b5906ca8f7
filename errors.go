package goCred

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goCred/internal/codes"
	"github.com/MrEthical07/goCred/policy"
	"github.com/MrEthical07/goCred/session"
)

var (
	// ErrValidation reports a request of the wrong shape. Its message is safe
	// to show verbatim.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound reports that no active challenge exists for the pair.
	ErrNotFound = errors.New("challenge not found")
	// ErrExpired reports a challenge checked after its expiry.
	ErrExpired = errors.New("challenge expired")
	// ErrInvalidCode reports a candidate that did not match the active challenge.
	ErrInvalidCode = errors.New("invalid code")
	// ErrTooManyAttempts reports a challenge locked by its attempt cap or by
	// the lockout guard.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrLockedOut reports a (subject, action class) pair under lockout.
	ErrLockedOut = errors.New("locked out")
	// ErrGeneration reports an unavailable secure random source.
	ErrGeneration = codes.ErrGeneration
	// ErrDelivery reports a notifier failure. Issuance is never rolled back.
	ErrDelivery = errors.New("delivery failed")
	// ErrStaleSubject reports a session whose subject no longer resolves.
	ErrStaleSubject = session.ErrStaleSubject
	// ErrInvalidCredentials reports a wrong password or unknown login email.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is wrapped by every *PolicyError.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse rejects a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrResendCooldown rejects a resend inside the cooldown window.
	ErrResendCooldown = errors.New("resend cooldown active")
	// ErrUnavailable wraps backend failures (store, guard, directory).
	ErrUnavailable = errors.New("backend unavailable")
	// ErrUnauthorized reports a missing, malformed, expired or revoked session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrResetIncomplete reports a reset whose token was spent but whose new
	// password could not be stored. The caller must request a new link. It
	// is returned alongside ErrUnavailable.
	ErrResetIncomplete = errors.New("password reset incomplete")

	// ErrSubjectNotFound is returned by Directory implementations for
	// unknown subjects and emails.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnknownChannel rejects a channel outside the supported set.
	ErrUnknownChannel = errors.New("unknown challenge channel")
	// ErrChannelNotConfigured rejects a channel the subject cannot use, such
	// as totp without an enrolled secret.
	ErrChannelNotConfigured = errors.New("channel not configured for subject")
)

// ErrorKind is the closed set of outcomes callers map to responses.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	KindValidation
	KindNotFound
	KindExpired
	KindInvalidCode
	KindTooManyAttempts
	KindLockedOut
	KindGeneration
	KindDelivery
	KindStaleSubject
	KindInvalidCredentials
	KindPolicyViolation
	KindResendCooldown
	KindUnavailable
	KindUnauthorized
	KindResetIncomplete
	KindInternal
)

var kindNames = [...]string{
	KindNone:               "none",
	KindValidation:         "validation",
	KindNotFound:           "not_found",
	KindExpired:            "expired",
	KindInvalidCode:        "invalid_code",
	KindTooManyAttempts:    "too_many_attempts",
	KindLockedOut:          "locked_out",
	KindGeneration:         "generation",
	KindDelivery:           "delivery",
	KindStaleSubject:       "stale_subject",
	KindInvalidCredentials: "invalid_credentials",
	KindPolicyViolation:    "policy_violation",
	KindResendCooldown:     "resend_cooldown",
	KindUnavailable:        "unavailable",
	KindUnauthorized:       "unauthorized",
	KindResetIncomplete:    "reset_incomplete",
	KindInternal:           "internal",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "internal"
}

// kindOrder is checked first to last; more specific sentinels come first.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{ErrValidation, KindValidation},
	{ErrUnknownChannel, KindValidation},
	{ErrChannelNotConfigured, KindValidation},
	{ErrTooManyAttempts, KindTooManyAttempts},
	{ErrLockedOut, KindLockedOut},
	{ErrExpired, KindExpired},
	{ErrInvalidCode, KindInvalidCode},
	{ErrNotFound, KindNotFound},
	{ErrResendCooldown, KindResendCooldown},
	{ErrPasswordPolicy, KindPolicyViolation},
	{ErrPasswordReuse, KindPolicyViolation},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrStaleSubject, KindStaleSubject},
	{ErrUnauthorized, KindUnauthorized},
	{ErrGeneration, KindGeneration},
	{ErrDelivery, KindDelivery},
	{ErrResetIncomplete, KindResetIncomplete},
	{ErrUnavailable, KindUnavailable},
	{ErrEngineNotReady, KindUnavailable},
}

// KindOf classifies err. Unknown errors map to KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// PublicMessage returns user-facing copy for kind. Verification failures
// share one message so callers cannot tell a wrong code from a missing
// challenge.
func PublicMessage(kind ErrorKind) string {
	switch kind {
	case KindNone:
		return ""
	case KindValidation:
		return "The request is invalid."
	case KindNotFound, KindExpired, KindInvalidCode:
		return "The code is invalid or has expired. Request a new one and try again."
	case KindTooManyAttempts, KindLockedOut:
		return "Too many attempts. Try again later."
	case KindResendCooldown:
		return "Please wait before requesting another code."
	case KindPolicyViolation:
		return "The new password does not meet the password requirements."
	case KindInvalidCredentials:
		return "Invalid email or password."
	case KindStaleSubject, KindUnauthorized:
		return "Your session has ended. Please sign in again."
	case KindResetIncomplete:
		return "Your password was not changed and the link can no longer be used. Request a new one."
	default:
		return "Something went wrong. Please try again later."
	}
}

// RetryError carries a retry-after hint alongside a lockout, attempt-cap or
// cooldown error.
type RetryError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RetryError) Unwrap() error { return e.Err }

// RetryAfter extracts the hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var re *RetryError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}

// PolicyError lists the rules a candidate password failed.
type PolicyError struct {
	Violations []policy.Violation
}

func (e *PolicyError) Error() string {
	if len(e.Violations) == 0 {
		return ErrPasswordPolicy.Error()
	}
	return fmt.Sprintf("%v: %s", ErrPasswordPolicy, e.Violations[0].Message)
}

func (e *PolicyError) Is(target error) bool {
	if target == ErrPasswordPolicy {
		return true
	}
	if target == ErrPasswordReuse {
		for _, v := range e.Violations {
			if v.Code == policy.ViolationSameAsCurrent {
				return true
			}
		}
	}
	return false
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
