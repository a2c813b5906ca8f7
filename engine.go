package goCred

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/internal/codes"
	"github.com/MrEthical07/goCred/internal/delivery"
	"github.com/MrEthical07/goCred/internal/flows"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/metrics"
	"github.com/MrEthical07/goCred/internal/stores"
	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/policy"
	"github.com/MrEthical07/goCred/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine runs the credential lifecycle: challenges, lockout, password
// changes and sessions. Build one with [New]; it is safe for concurrent use.
type Engine struct {
	config Config
	now    func() time.Time
	logger *zap.Logger

	directory Directory
	notifier  Notifier
	renderer  Renderer

	challenges  stores.ChallengeStore
	totpSteps   stores.StepStore
	guard       limiters.Guard
	revocations session.RevocationStore
	ping        func(context.Context) (time.Duration, error)

	issuer    *session.Issuer
	codec     *jwt.Codec
	hasher    *password.Argon2
	totp      *totpVerifier
	generator codes.Generator
	policy    policy.Policy

	audit    *audit.Dispatcher
	metrics  *metrics.Metrics
	delivery *delivery.Queue

	flows flows.Deps
}

// Close drains the audit dispatcher and the delivery queue.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.delivery != nil {
		e.delivery.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Ping checks the shared backend. The memory backend always succeeds.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.ping == nil {
		return nil
	}
	if _, err := e.ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// DeliveryDropped counts notifications refused by a full async queue.
func (e *Engine) DeliveryDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.delivery.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) buildFlows() flows.Deps {
	errs := flows.Errors{
		Validation:           ErrValidation,
		NotFound:             ErrNotFound,
		Expired:              ErrExpired,
		InvalidCode:          ErrInvalidCode,
		TooManyAttempts:      ErrTooManyAttempts,
		LockedOut:            ErrLockedOut,
		ResendCooldown:       ErrResendCooldown,
		InvalidCredentials:   ErrInvalidCredentials,
		SubjectNotFound:      ErrSubjectNotFound,
		ChannelNotConfigured: ErrChannelNotConfigured,
		PasswordReuse:        ErrPasswordReuse,
		ResetIncomplete:      ErrResetIncomplete,
		Retry: func(err error, after time.Duration) error {
			return &RetryError{Err: err, RetryAfter: after}
		},
		Backend: unavailable,
		Policy: func(res policy.Result) error {
			return &PolicyError{Violations: res.Violations}
		},
	}

	challenge := flows.ChallengeDeps{
		Now:       e.now,
		NewID:     uuid.NewString,
		Cooldown:  e.config.Challenge.ResendCooldown,
		Retention: e.config.Challenge.Retention,

		Channel: e.channelSpec,
		Lookup: func(ctx context.Context, subject string) (flows.Recipient, error) {
			acct, err := e.lookupAccount(ctx, subject)
			return acct.Recipient, err
		},
		Store:            e.challenges,
		Guard:            e.guardCheck,
		Deliver:          e.deliverChallenge,
		VerifyTOTP:       e.totp.verify,
		ClaimTOTPStep:    e.claimTOTPStep,
		EnumerationDelay: e.enumerationDelay,

		MetricInc:     e.metricInc,
		MetricObserve: e.metricObserve,
		EmitAudit:     e.emitAudit,
		Logger:        e.logger,
		Errors:        errs,
	}

	return flows.Deps{
		Challenge: challenge,
		Password: flows.PasswordDeps{
			Policy:           e.policy,
			ResetChannel:     string(ChannelPasswordReset),
			Lookup:           e.lookupAccount,
			FindByEmail:      e.directory.FindByEmail,
			Update:           e.directory.UpdateCredential,
			Hash:             e.hasher.Hash,
			Verify:           e.verifyPassword,
			Guard:            e.guardCheck,
			Alert:            e.securityAlert,
			EnumerationDelay: e.enumerationDelay,
			Challenge:        challenge,
			MetricInc:        e.metricInc,
			EmitAudit:        e.emitAudit,
			Logger:           e.logger,
			Errors:           errs,
		},
		Login: flows.LoginDeps{
			UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
			FindByEmail:    e.directory.FindByEmail,
			Lookup:         e.lookupAccount,
			Verify:         e.verifyPassword,
			VerifyDummy:    e.hasher.VerifyDummy,
			NeedsUpgrade:   e.hasher.NeedsUpgrade,
			Hash:           e.hasher.Hash,
			Update:         e.directory.UpdateCredential,
			Guard:          e.guardCheck,
			Challenge:      challenge,
			MetricInc:      e.metricInc,
			EmitAudit:      e.emitAudit,
			Logger:         e.logger,
			Errors:         errs,
		},
	}
}

func (e *Engine) channelSpec(name string) (flows.ChannelSpec, bool) {
	switch Channel(name) {
	case ChannelEmailOTP:
		c := e.config.Challenge.EmailOTP
		return flows.ChannelSpec{
			Name:        name,
			TTL:         c.TTL,
			MaxAttempts: c.MaxAttempts,
			VerifyClass: ClassOTPVerify,
			Mint:        func() (string, error) { return e.generator.Code(c.CodeDigits) },
			Shape:       func(s string) bool { return len(s) == c.CodeDigits && codes.IsNumeric(s) },
		}, true
	case ChannelPasswordReset:
		c := e.config.Challenge.PasswordReset
		return flows.ChannelSpec{
			Name:        name,
			TTL:         c.TTL,
			MaxAttempts: c.MaxAttempts,
			VerifyClass: ClassResetVerify,
			Mint:        func() (string, error) { return e.generator.OpaqueToken(c.TokenBytes) },
			Shape:       func(s string) bool { return len(s) == 2*c.TokenBytes && codes.IsHex(s) },
		}, true
	case ChannelTOTP:
		c := e.config.Challenge.TOTP
		return flows.ChannelSpec{
			Name:          name,
			TTL:           c.TTL,
			MaxAttempts:   c.MaxAttempts,
			VerifyClass:   ClassTOTPVerify,
			Shape:         func(s string) bool { return len(s) == c.Digits && codes.IsNumeric(s) },
			Authenticator: true,
		}, true
	default:
		return flows.ChannelSpec{}, false
	}
}

func (e *Engine) lookupAccount(ctx context.Context, subject string) (flows.Account, error) {
	cred, err := e.directory.FindBySubject(ctx, subject)
	if err != nil {
		return flows.Account{}, err
	}
	if cred.Subject == "" {
		cred.Subject = subject
	}
	return flows.Account{
		Recipient: flows.Recipient{
			Subject:    cred.Subject,
			Email:      cred.Email,
			Name:       cred.Name,
			TOTPSecret: cred.TOTPSecret,
		},
		PasswordHash: cred.PasswordHash,
		TwoFactor:    string(cred.TwoFactor),
	}, nil
}

func (e *Engine) subjectExists(ctx context.Context, subject string) (bool, error) {
	_, err := e.directory.FindBySubject(ctx, subject)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrSubjectNotFound):
		return false, nil
	default:
		return false, unavailable(err)
	}
}

// verifyPassword treats out-of-range inputs as a mismatch.
func (e *Engine) verifyPassword(plain, hash string) (bool, error) {
	ok, err := e.hasher.Verify(plain, hash)
	if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
		return false, nil
	}
	return ok, err
}

func (e *Engine) guardCheck(ctx context.Context, subject, class string, outcome Outcome) (limiters.Decision, error) {
	return e.guard.CheckAndRecord(ctx, subject, class, outcome, e.config.lockoutPolicy(class), e.now())
}

func (e *Engine) enumerationDelay(ctx context.Context) error {
	return flows.SleepEnumerationDelay(ctx, e.config.Challenge.EnumerationDelayMin, e.config.Challenge.EnumerationDelayMax)
}

func (e *Engine) deliverChallenge(ctx context.Context, req flows.DeliveryRequest) flows.DeliveryReport {
	data := MessageData{
		To:               req.Recipient.Email,
		Name:             req.Recipient.Name,
		ExpiresInMinutes: int(req.ExpiresAt.Sub(e.now()).Round(time.Minute) / time.Minute),
	}
	kind := MessageOTP
	if Channel(req.Channel) == ChannelPasswordReset {
		kind = MessageResetLink
		data.Link = e.resetLink(req.Recipient.Subject, req.Secret)
	} else {
		data.Code = req.Secret
	}
	return e.send(ctx, kind, data)
}

// resetLink appends uid and token to the configured reset URL.
func (e *Engine) resetLink(subject, token string) string {
	u, err := url.Parse(e.config.Reset.URL)
	if err != nil {
		u = &url.URL{}
	}
	q := u.Query()
	q.Set("uid", subject)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (e *Engine) securityAlert(ctx context.Context, rcpt flows.Recipient, event string) {
	if rcpt.Email == "" {
		return
	}
	rep := e.send(ctx, MessageSecurityAlert, MessageData{
		To:         rcpt.Email,
		Name:       rcpt.Name,
		Event:      event,
		OccurredAt: e.now(),
	})
	if rep.Err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.Warn("security alert delivery failed",
			zap.String("subject", rcpt.Subject), zap.String("event", event), zap.Error(rep.Err))
	}
}

func (e *Engine) send(ctx context.Context, kind MessageKind, data MessageData) flows.DeliveryReport {
	if e.notifier == nil {
		return flows.DeliveryReport{Err: fmt.Errorf("%w: no notifier configured", ErrDelivery)}
	}
	msg, err := e.renderer.Render(kind, data)
	if err != nil {
		return flows.DeliveryReport{Err: fmt.Errorf("%w: render %s: %v", ErrDelivery, kind, err)}
	}
	if msg.To == "" {
		msg.To = data.To
	}

	if e.delivery != nil {
		notifier := e.notifier
		ok := e.delivery.Enqueue(func(ctx context.Context) error {
			if _, err := notifier.Send(ctx, msg); err != nil {
				return fmt.Errorf("%w: %v", ErrDelivery, err)
			}
			return nil
		})
		if !ok {
			return flows.DeliveryReport{Err: fmt.Errorf("%w: delivery queue full", ErrDelivery)}
		}
		return flows.DeliveryReport{Queued: true}
	}

	res, err := e.notifier.Send(ctx, msg)
	rep := flows.DeliveryReport{
		Attempted: true,
		Provider:  res.Provider,
		MessageID: res.MessageID,
		SentAt:    res.SentAt,
	}
	if err != nil {
		rep.Err = fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return rep
}

func (e *Engine) claimTOTPStep(ctx context.Context, subject string, step int64) (bool, error) {
	return e.totpSteps.Claim(ctx, subject, step, e.totp.replayWindow())
}
