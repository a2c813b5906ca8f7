package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/metrics"
	"go.uber.org/zap"
)

// LoginOutcome is the result of a password check. When MFARequired is set a
// challenge has been issued on Channel and no session should be created yet.
type LoginOutcome struct {
	Subject     string
	Email       string
	MFARequired bool
	Channel     string
	Challenge   *IssueResult
}

type LoginDeps struct {
	UpgradeOnLogin bool

	FindByEmail  func(ctx context.Context, email string) (string, error)
	Lookup       AccountLookup
	Verify       func(password, hash string) (bool, error)
	VerifyDummy  func(password string)
	NeedsUpgrade func(hash string) (bool, error)
	Hash         func(password string) (string, error)
	Update       func(ctx context.Context, subject, hash string) error
	Guard        GuardFunc

	Challenge ChallengeDeps

	MetricInc func(metrics.MetricID)
	EmitAudit func(ctx context.Context, event audit.Event)
	Logger    *zap.Logger

	Errors Errors
}

// RunLogin checks email and password. The guard ledger is keyed by the
// normalized email so unknown and known addresses lock out alike, and
// unknown addresses still pay for one Argon2id verification.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (LoginOutcome, error) {
	normalizeErrors(&deps.Errors)
	o := &observer{MetricInc: deps.MetricInc, EmitAudit: deps.EmitAudit, Logger: deps.Logger}
	o.normalize()
	const eventType = "login"

	email = NormalizeEmail(email)
	if !plausibleEmail(email) || password == "" {
		return LoginOutcome{}, deps.Errors.Validation
	}
	if deps.FindByEmail == nil || deps.Lookup == nil || deps.Verify == nil || deps.Guard == nil {
		return LoginOutcome{}, deps.Errors.Backend(errors.New("login flow not configured"))
	}

	dec, err := deps.Guard(ctx, email, ClassLogin, limiters.OutcomeNone)
	if err != nil {
		return LoginOutcome{}, deps.Errors.Backend(err)
	}
	if !dec.Allowed {
		o.MetricInc(metrics.MetricLockoutRejected)
		out := deps.Errors.Retry(deps.Errors.LockedOut, dec.RetryAfter)
		o.audit(ctx, eventType, "", "", out, nil)
		return LoginOutcome{}, out
	}

	reject := func(subject string) error {
		o.MetricInc(metrics.MetricLoginFailure)
		out := deps.Errors.InvalidCredentials
		d, gerr := deps.Guard(ctx, email, ClassLogin, limiters.OutcomeFailure)
		if gerr != nil {
			o.Logger.Warn("lockout guard update failed", zap.String("action_class", ClassLogin), zap.Error(gerr))
		} else if !d.Allowed {
			o.MetricInc(metrics.MetricLockoutTriggered)
			out = deps.Errors.Retry(out, d.RetryAfter)
		}
		o.audit(ctx, eventType, subject, "", out, nil)
		return out
	}

	subject, err := deps.FindByEmail(ctx, email)
	var acct Account
	if err == nil {
		acct, err = deps.Lookup(ctx, subject)
	}
	if err != nil {
		if !errors.Is(err, deps.Errors.SubjectNotFound) {
			return LoginOutcome{}, deps.Errors.Backend(err)
		}
		if deps.VerifyDummy != nil {
			deps.VerifyDummy(password)
		}
		return LoginOutcome{}, reject("")
	}

	ok, err := deps.Verify(password, acct.PasswordHash)
	if err != nil {
		o.Logger.Error("stored password hash rejected", zap.String("subject", subject), zap.Error(err))
		return LoginOutcome{}, reject(subject)
	}
	if !ok {
		return LoginOutcome{}, reject(subject)
	}

	if _, err := deps.Guard(ctx, email, ClassLogin, limiters.OutcomeSuccess); err != nil {
		o.Logger.Warn("lockout guard reset failed", zap.String("subject", subject), zap.Error(err))
	}
	if deps.UpgradeOnLogin {
		upgradeHash(ctx, subject, password, acct.PasswordHash, deps, o)
	}

	out := LoginOutcome{Subject: subject, Email: acct.Email}
	if acct.TwoFactor == "" {
		o.MetricInc(metrics.MetricLoginSuccess)
		o.audit(ctx, eventType, subject, "", nil, nil)
		return out, nil
	}

	rcpt := acct.Recipient
	issued, err := RunIssueChallenge(ctx, subject, acct.TwoFactor, IssueOptions{Recipient: &rcpt}, deps.Challenge)
	if err != nil {
		o.audit(ctx, eventType, subject, acct.TwoFactor, err, map[string]string{"stage": "step_up"})
		return LoginOutcome{}, err
	}
	o.MetricInc(metrics.MetricLoginMFARequired)
	o.audit(ctx, eventType, subject, acct.TwoFactor, nil, map[string]string{"stage": "step_up"})

	out.MFARequired = true
	out.Channel = acct.TwoFactor
	out.Challenge = &issued
	return out, nil
}

func upgradeHash(ctx context.Context, subject, password, hash string, deps LoginDeps, o *observer) {
	if deps.NeedsUpgrade == nil || deps.Hash == nil || deps.Update == nil {
		return
	}
	stale, err := deps.NeedsUpgrade(hash)
	if err != nil || !stale {
		return
	}
	upgraded, err := deps.Hash(password)
	if err != nil {
		o.Logger.Warn("password rehash failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := deps.Update(ctx, subject, upgraded); err != nil {
		o.Logger.Warn("password rehash update failed", zap.String("subject", subject), zap.Error(err))
	}
}
