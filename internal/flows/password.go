package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/metrics"
	"github.com/MrEthical07/goCred/policy"
	"go.uber.org/zap"
)

type PasswordDeps struct {
	Policy       policy.Policy
	ResetChannel string

	Lookup      AccountLookup
	FindByEmail func(ctx context.Context, email string) (string, error)
	Update      func(ctx context.Context, subject, hash string) error
	Hash        func(password string) (string, error)
	Verify      func(password, hash string) (bool, error)
	Guard       GuardFunc
	// Alert sends a best-effort security notification.
	Alert            func(ctx context.Context, rcpt Recipient, event string)
	EnumerationDelay func(ctx context.Context) error

	Challenge ChallengeDeps

	MetricInc func(metrics.MetricID)
	EmitAudit func(ctx context.Context, event audit.Event)
	Logger    *zap.Logger

	Errors Errors
}

func normalizePasswordDeps(deps *PasswordDeps) *observer {
	if deps.Alert == nil {
		deps.Alert = func(context.Context, Recipient, string) {}
	}
	if deps.EnumerationDelay == nil {
		deps.EnumerationDelay = func(context.Context) error { return nil }
	}
	normalizeErrors(&deps.Errors)

	o := &observer{
		MetricInc: deps.MetricInc,
		EmitAudit: deps.EmitAudit,
		Logger:    deps.Logger,
	}
	o.normalize()
	return o
}

func (deps *PasswordDeps) ready() bool {
	return deps.Lookup != nil && deps.Update != nil && deps.Hash != nil && deps.Verify != nil && deps.Guard != nil
}

// RunChangePassword replaces the password of an authenticated subject. The
// policy check runs first, so a rejected candidate never touches storage.
func RunChangePassword(ctx context.Context, subject, current, next string, deps PasswordDeps) error {
	o := normalizePasswordDeps(&deps)
	const eventType = "password_change"

	if strings.TrimSpace(subject) == "" || current == "" {
		return deps.Errors.Validation
	}

	res := deps.Policy.ValidateChange(current, next)
	if !res.Valid {
		if res.Has(policy.ViolationSameAsCurrent) {
			o.MetricInc(metrics.MetricPasswordChangeReuseRejected)
		} else {
			o.MetricInc(metrics.MetricPasswordChangeFailure)
		}
		err := deps.Errors.Policy(res)
		o.audit(ctx, eventType, subject, "", err, nil)
		return err
	}
	if !deps.ready() {
		return deps.Errors.Backend(errors.New("password flow not configured"))
	}

	dec, err := deps.Guard(ctx, subject, ClassPasswordConfirm, limiters.OutcomeNone)
	if err != nil {
		return deps.Errors.Backend(err)
	}
	if !dec.Allowed {
		o.MetricInc(metrics.MetricLockoutRejected)
		out := deps.Errors.Retry(deps.Errors.LockedOut, dec.RetryAfter)
		o.audit(ctx, eventType, subject, "", out, nil)
		return out
	}

	acct, err := deps.Lookup(ctx, subject)
	if err != nil {
		if errors.Is(err, deps.Errors.SubjectNotFound) {
			return err
		}
		return deps.Errors.Backend(err)
	}

	ok, err := deps.Verify(current, acct.PasswordHash)
	if err != nil {
		return deps.Errors.Backend(err)
	}
	if !ok {
		o.MetricInc(metrics.MetricPasswordChangeFailure)
		out := deps.Errors.InvalidCredentials
		d, gerr := deps.Guard(ctx, subject, ClassPasswordConfirm, limiters.OutcomeFailure)
		if gerr != nil {
			o.Logger.Warn("lockout guard update failed",
				zap.String("subject", subject), zap.String("action_class", ClassPasswordConfirm), zap.Error(gerr))
		} else if !d.Allowed {
			o.MetricInc(metrics.MetricLockoutTriggered)
			out = deps.Errors.Retry(out, d.RetryAfter)
		}
		o.audit(ctx, eventType, subject, "", out, nil)
		return out
	}

	hash, err := deps.Hash(next)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Validation, err)
	}
	if err := deps.Update(ctx, subject, hash); err != nil {
		return deps.Errors.Backend(err)
	}

	if _, err := deps.Guard(ctx, subject, ClassPasswordConfirm, limiters.OutcomeSuccess); err != nil {
		o.Logger.Warn("lockout guard reset failed", zap.String("subject", subject), zap.Error(err))
	}
	o.MetricInc(metrics.MetricPasswordChangeSuccess)
	o.audit(ctx, eventType, subject, "", nil, nil)
	deps.Alert(ctx, acct.Recipient, "password_changed")
	return nil
}

// RunRequestPasswordReset issues a reset challenge for the account behind
// email. It returns nil for unknown emails and for failures after the input
// check, so callers always answer the same way.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordDeps) error {
	o := normalizePasswordDeps(&deps)
	const eventType = "password_reset_request"

	email = NormalizeEmail(email)
	if !plausibleEmail(email) {
		return deps.Errors.Validation
	}
	o.MetricInc(metrics.MetricPasswordResetRequest)

	if deps.FindByEmail == nil {
		o.Logger.Error("password reset requested without a directory")
		return nil
	}

	subject, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, deps.Errors.SubjectNotFound) {
			o.Logger.Error("password reset lookup failed", zap.Error(err))
		}
		o.audit(ctx, eventType, "", deps.ResetChannel, nil, map[string]string{"matched": "false"})
		return deps.EnumerationDelay(ctx)
	}

	_, err = RunIssueChallenge(ctx, subject, deps.ResetChannel, IssueOptions{Cooldown: true}, deps.Challenge)
	switch {
	case err == nil:
	case errors.Is(err, deps.Errors.ResendCooldown):
		o.Logger.Debug("password reset inside cooldown", zap.String("subject", subject))
	default:
		o.Logger.Error("password reset issue failed", zap.String("subject", subject), zap.Error(err))
	}
	o.audit(ctx, eventType, subject, deps.ResetChannel, nil, map[string]string{"matched": "true"})
	return nil
}

// RunConfirmPasswordReset verifies token and installs next as the new
// password. A candidate equal to the current password is rejected before the
// token is consumed, so the link stays usable.
func RunConfirmPasswordReset(ctx context.Context, subject, token, next string, deps PasswordDeps) error {
	o := normalizePasswordDeps(&deps)
	const eventType = "password_reset_confirm"

	if strings.TrimSpace(subject) == "" || strings.TrimSpace(token) == "" {
		return deps.Errors.Validation
	}
	if res := deps.Policy.Validate(next); !res.Valid {
		o.MetricInc(metrics.MetricPasswordResetConfirmFailure)
		return deps.Errors.Policy(res)
	}
	if !deps.ready() {
		return deps.Errors.Backend(errors.New("password flow not configured"))
	}

	var (
		acct    Account
		newHash string
	)
	beforeConsume := func(ctx context.Context) error {
		var err error
		acct, err = deps.Lookup(ctx, subject)
		if err != nil {
			if errors.Is(err, deps.Errors.SubjectNotFound) {
				return deps.Errors.NotFound
			}
			return deps.Errors.Backend(err)
		}

		same, err := deps.Verify(next, acct.PasswordHash)
		if err != nil {
			return deps.Errors.Backend(err)
		}
		if same {
			o.MetricInc(metrics.MetricPasswordChangeReuseRejected)
			return deps.Errors.PasswordReuse
		}

		newHash, err = deps.Hash(next)
		if err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.Validation, err)
		}
		return nil
	}

	_, err := RunVerifyChallenge(ctx, subject, deps.ResetChannel, token, VerifyOptions{BeforeConsume: beforeConsume}, deps.Challenge)
	if err != nil {
		o.MetricInc(metrics.MetricPasswordResetConfirmFailure)
		o.audit(ctx, eventType, subject, deps.ResetChannel, err, nil)
		return err
	}

	if err := deps.Update(ctx, subject, newHash); err != nil {
		o.MetricInc(metrics.MetricPasswordResetConfirmFailure)
		o.Logger.Error("password reset update failed after token consumed",
			zap.String("subject", subject), zap.Error(err))
		out := deps.Errors.Backend(err)
		if deps.Errors.ResetIncomplete != nil {
			out = fmt.Errorf("%w: %w", deps.Errors.ResetIncomplete, out)
		}
		o.audit(ctx, eventType, subject, deps.ResetChannel, out, map[string]string{"stage": "update"})
		return out
	}

	o.MetricInc(metrics.MetricPasswordResetConfirmSuccess)
	o.audit(ctx, eventType, subject, deps.ResetChannel, nil, nil)
	deps.Alert(ctx, acct.Recipient, "password_reset")
	return nil
}
