package flows

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/metrics"
	"github.com/MrEthical07/goCred/policy"
	"go.uber.org/zap"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each request method to the matching flow.
type Deps struct {
	Challenge ChallengeDeps
	Password  PasswordDeps
	Login     LoginDeps
}

// Action classes used by the flows. The root package re-exports them.
const (
	ClassLogin           = "login"
	ClassResend          = "resend"
	ClassPasswordConfirm = "password-confirm"
)

// GuardFunc applies outcome to the (subject, class) ledger.
type GuardFunc func(ctx context.Context, subject, class string, outcome limiters.Outcome) (limiters.Decision, error)

// Errors carries the root sentinels so flows can return them without
// importing the root package.
type Errors struct {
	Validation           error
	NotFound             error
	Expired              error
	InvalidCode          error
	TooManyAttempts      error
	LockedOut            error
	ResendCooldown       error
	InvalidCredentials   error
	SubjectNotFound      error
	ChannelNotConfigured error
	PasswordReuse        error
	ResetIncomplete      error

	// Retry attaches a retry-after hint to err.
	Retry func(err error, after time.Duration) error
	// Backend wraps store, guard and directory failures.
	Backend func(err error) error
	// Policy converts a failed policy result into an error.
	Policy func(res policy.Result) error
}

// Recipient is the directory data a flow needs about a subject.
type Recipient struct {
	Subject    string
	Email      string
	Name       string
	TOTPSecret []byte
}

type observer struct {
	MetricInc     func(metrics.MetricID)
	MetricObserve func(metrics.MetricID, time.Duration)
	EmitAudit     func(context.Context, audit.Event)
	Logger        *zap.Logger
}

func (o *observer) normalize() {
	if o.MetricInc == nil {
		o.MetricInc = func(metrics.MetricID) {}
	}
	if o.MetricObserve == nil {
		o.MetricObserve = func(metrics.MetricID, time.Duration) {}
	}
	if o.EmitAudit == nil {
		o.EmitAudit = func(context.Context, audit.Event) {}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func (o *observer) audit(ctx context.Context, eventType, subject, channel string, err error, meta map[string]string) {
	ev := audit.Event{
		EventType: eventType,
		Subject:   subject,
		Channel:   channel,
		Success:   err == nil,
		Metadata:  meta,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.EmitAudit(ctx, ev)
}

func normalizeErrors(e *Errors) {
	if e.Retry == nil {
		e.Retry = func(err error, _ time.Duration) error { return err }
	}
	if e.Backend == nil {
		e.Backend = func(err error) error { return err }
	}
	if e.Policy == nil {
		e.Policy = func(policy.Result) error { return e.Validation }
	}
}

// SleepEnumerationDelay waits a random duration in [min, max] so that
// unknown-subject paths take about as long as real ones.
func SleepEnumerationDelay(ctx context.Context, min, max time.Duration) error {
	if max <= 0 {
		return nil
	}
	delay := min
	if span := max - min; span > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(span)+1))
		if err != nil {
			return err
		}
		delay += time.Duration(n.Int64())
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
