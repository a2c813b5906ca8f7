package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/internal/codes"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/metrics"
	"github.com/MrEthical07/goCred/internal/stores"
	"go.uber.org/zap"
)

// ChannelSpec describes how one channel mints and checks secrets.
type ChannelSpec struct {
	Name        string
	TTL         time.Duration
	MaxAttempts int
	// VerifyClass is the lockout class consulted before each comparison.
	VerifyClass string
	// Mint returns a fresh plaintext secret. Nil for authenticator channels.
	Mint func() (string, error)
	// Shape reports whether a candidate is well formed.
	Shape func(candidate string) bool
	// Authenticator channels compare against the subject's TOTP secret
	// instead of a stored hash and deliver nothing.
	Authenticator bool
}

// DeliveryRequest is handed to the notifier once the record is stored. It is
// the only place the plaintext secret travels.
type DeliveryRequest struct {
	Recipient Recipient
	Channel   string
	Secret    string
	ExpiresAt time.Time
}

// DeliveryReport is what came of a DeliveryRequest.
type DeliveryReport struct {
	Attempted bool
	Queued    bool
	Provider  string
	MessageID string
	SentAt    time.Time
	Err       error
}

// IssueOptions tunes RunIssueChallenge.
type IssueOptions struct {
	// Resend consults the resend guard. Unknown subjects get an undelivered
	// decoy instance so the answer matches a real one.
	Resend bool
	// Cooldown rejects the issue while the prior instance is younger than
	// ChallengeDeps.Cooldown.
	Cooldown bool
	// Recipient skips the directory lookup when the caller resolved it.
	Recipient *Recipient
}

// IssueResult describes a stored challenge.
type IssueResult struct {
	Subject   string
	Channel   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Delivery  DeliveryReport
}

// VerifyOptions tunes RunVerifyChallenge.
type VerifyOptions struct {
	// BeforeConsume runs after a matching candidate and before the instance
	// is consumed. An error aborts the verification and leaves the instance
	// issued.
	BeforeConsume func(ctx context.Context) error
}

// VerifyOutcome carries the hints that accompany a verification error.
type VerifyOutcome struct {
	AttemptsRemaining int
	RetryAfter        time.Duration
}

// StatusResult is the read-only view of the current instance.
type StatusResult struct {
	Subject           string
	Channel           string
	State             string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
	ResendAvailable   bool
	ResendAvailableAt time.Time
}

type ChallengeDeps struct {
	Now       func() time.Time
	NewID     func() string
	Cooldown  time.Duration
	Retention time.Duration

	Channel          func(name string) (ChannelSpec, bool)
	Lookup           func(ctx context.Context, subject string) (Recipient, error)
	Store            stores.ChallengeStore
	Guard            GuardFunc
	Deliver          func(ctx context.Context, req DeliveryRequest) DeliveryReport
	VerifyTOTP       func(secret []byte, candidate string, now time.Time) (int64, bool, error)
	EnumerationDelay func(ctx context.Context) error

	// ClaimTOTPStep records an accepted authenticator step; false means the
	// step was already used.
	ClaimTOTPStep func(ctx context.Context, subject string, step int64) (bool, error)

	MetricInc     func(metrics.MetricID)
	MetricObserve func(metrics.MetricID, time.Duration)
	EmitAudit     func(ctx context.Context, event audit.Event)
	Logger        *zap.Logger

	Errors Errors
}

func normalizeChallengeDeps(deps *ChallengeDeps) *observer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.EnumerationDelay == nil {
		deps.EnumerationDelay = func(context.Context) error { return nil }
	}
	normalizeErrors(&deps.Errors)

	o := &observer{
		MetricInc:     deps.MetricInc,
		MetricObserve: deps.MetricObserve,
		EmitAudit:     deps.EmitAudit,
		Logger:        deps.Logger,
	}
	o.normalize()
	return o
}

// RunIssueChallenge mints a secret, stores its hash as the only instance
// for (subject, channel) and then delivers the plaintext. Delivery failure
// is reported in the result and never undoes the store write.
func RunIssueChallenge(ctx context.Context, subject, channel string, opts IssueOptions, deps ChallengeDeps) (IssueResult, error) {
	o := normalizeChallengeDeps(&deps)
	eventType := "challenge_issue"
	if opts.Resend {
		eventType = "challenge_resend"
	}

	cs, ok := deps.Channel(channel)
	if !ok || strings.TrimSpace(subject) == "" {
		return IssueResult{}, deps.Errors.Validation
	}
	if deps.Store == nil || deps.Guard == nil || deps.NewID == nil || (deps.Lookup == nil && opts.Recipient == nil) {
		return IssueResult{}, deps.Errors.Backend(errors.New("challenge flow not configured"))
	}

	if opts.Resend {
		dec, err := deps.Guard(ctx, subject, ClassResend, limiters.OutcomeNone)
		if err != nil {
			return IssueResult{}, deps.Errors.Backend(err)
		}
		if !dec.Allowed {
			o.MetricInc(metrics.MetricLockoutRejected)
			out := deps.Errors.Retry(deps.Errors.LockedOut, dec.RetryAfter)
			o.audit(ctx, eventType, subject, channel, out, nil)
			return IssueResult{}, out
		}
	}

	// A decoy instance is stored for resends that cannot reach anyone so the
	// cooldown and status answer the same as for a real subject. Its secret
	// is never delivered.
	var (
		rcpt  Recipient
		decoy bool
	)
	if opts.Recipient != nil {
		rcpt = *opts.Recipient
	} else {
		found, err := deps.Lookup(ctx, subject)
		switch {
		case err == nil:
			rcpt = found
		case !errors.Is(err, deps.Errors.SubjectNotFound):
			return IssueResult{}, deps.Errors.Backend(err)
		case !opts.Resend:
			return IssueResult{}, err
		default:
			if derr := deps.EnumerationDelay(ctx); derr != nil {
				return IssueResult{}, derr
			}
			decoy = true
		}
	}
	if cs.Authenticator && len(rcpt.TOTPSecret) == 0 && !decoy {
		if !opts.Resend {
			return IssueResult{}, deps.Errors.ChannelNotConfigured
		}
		decoy = true
	}

	var (
		secret string
		digest [32]byte
	)
	if cs.Mint != nil {
		var err error
		secret, err = cs.Mint()
		if err != nil {
			o.Logger.Error("challenge secret generation failed",
				zap.String("subject", subject), zap.String("channel", channel), zap.Error(err))
			o.audit(ctx, eventType, subject, channel, err, nil)
			return IssueResult{}, err
		}
		digest = codes.Hash(secret)
	}

	now := deps.Now()
	rec := &stores.ChallengeRecord{
		ID:          deps.NewID(),
		Subject:     subject,
		Channel:     channel,
		SecretHash:  digest,
		IssuedAt:    now,
		ExpiresAt:   now.Add(cs.TTL),
		MaxAttempts: cs.MaxAttempts,
	}
	put := stores.PutOptions{Retention: deps.Retention, Now: now}
	if opts.Cooldown {
		put.Cooldown = deps.Cooldown
	}

	if err := deps.Store.Put(ctx, rec, put); err != nil {
		var cd *stores.CooldownError
		if !errors.As(err, &cd) {
			return IssueResult{}, deps.Errors.Backend(err)
		}

		o.MetricInc(metrics.MetricChallengeResendCooldown)
		if opts.Resend {
			dec, gerr := deps.Guard(ctx, subject, ClassResend, limiters.OutcomeFailure)
			if gerr != nil {
				o.Logger.Warn("resend guard update failed", zap.String("subject", subject), zap.Error(gerr))
			} else if !dec.Allowed {
				o.MetricInc(metrics.MetricLockoutTriggered)
			}
		}
		out := deps.Errors.Retry(deps.Errors.ResendCooldown, cd.RetryAfter)
		o.audit(ctx, eventType, subject, channel, out, nil)
		return IssueResult{}, out
	}

	if opts.Resend {
		o.MetricInc(metrics.MetricChallengeResent)
	} else {
		o.MetricInc(metrics.MetricChallengeIssued)
	}

	res := IssueResult{
		Subject:   subject,
		Channel:   channel,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if secret != "" && !decoy && deps.Deliver != nil {
		res.Delivery = deps.Deliver(ctx, DeliveryRequest{
			Recipient: rcpt,
			Channel:   channel,
			Secret:    secret,
			ExpiresAt: rec.ExpiresAt,
		})
		if res.Delivery.Err != nil {
			o.MetricInc(metrics.MetricDeliveryFailure)
			o.Logger.Warn("challenge delivery failed",
				zap.String("subject", subject), zap.String("channel", channel), zap.Error(res.Delivery.Err))
		}
	}

	o.audit(ctx, eventType, subject, channel, nil, map[string]string{
		"delivered": boolString(res.Delivery.Attempted && res.Delivery.Err == nil),
		"queued":    boolString(res.Delivery.Queued),
		"decoy":     boolString(decoy),
	})
	return res, nil
}

// RunVerifyChallenge checks candidate against the active instance. The
// lockout guard is consulted before any comparison; the attempt is reserved
// atomically before comparing; a match is consumed by instance ID so only
// one concurrent caller can win.
func RunVerifyChallenge(ctx context.Context, subject, channel, candidate string, opts VerifyOptions, deps ChallengeDeps) (VerifyOutcome, error) {
	o := normalizeChallengeDeps(&deps)
	started := time.Now()
	defer func() { o.MetricObserve(metrics.MetricVerifyLatency, time.Since(started)) }()

	const eventType = "challenge_verify"

	cs, ok := deps.Channel(channel)
	candidate = strings.TrimSpace(candidate)
	if !ok || strings.TrimSpace(subject) == "" || cs.Shape == nil || !cs.Shape(candidate) {
		return VerifyOutcome{}, deps.Errors.Validation
	}
	if deps.Store == nil || deps.Guard == nil {
		return VerifyOutcome{}, deps.Errors.Backend(errors.New("challenge flow not configured"))
	}

	dec, err := deps.Guard(ctx, subject, cs.VerifyClass, limiters.OutcomeNone)
	if err != nil {
		return VerifyOutcome{}, deps.Errors.Backend(err)
	}
	now := deps.Now()
	if !dec.Allowed {
		o.MetricInc(metrics.MetricLockoutRejected)
		burned, err := deps.Store.Burn(ctx, subject, channel, now)
		if err != nil {
			return VerifyOutcome{}, deps.Errors.Backend(err)
		}
		base := deps.Errors.LockedOut
		if burned {
			base = deps.Errors.TooManyAttempts
		}
		out := deps.Errors.Retry(base, dec.RetryAfter)
		o.audit(ctx, eventType, subject, channel, out, map[string]string{"reason": "locked_out"})
		return VerifyOutcome{RetryAfter: dec.RetryAfter}, out
	}

	fail := func() time.Duration {
		d, gerr := deps.Guard(ctx, subject, cs.VerifyClass, limiters.OutcomeFailure)
		if gerr != nil {
			o.Logger.Warn("lockout guard update failed",
				zap.String("subject", subject), zap.String("action_class", cs.VerifyClass), zap.Error(gerr))
			return 0
		}
		if !d.Allowed {
			o.MetricInc(metrics.MetricLockoutTriggered)
			return d.RetryAfter
		}
		return 0
	}

	rec, err := deps.Store.Reserve(ctx, subject, channel, now)
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrChallengeNotFound):
		o.MetricInc(metrics.MetricChallengeNotFound)
		fail()
		o.audit(ctx, eventType, subject, channel, deps.Errors.NotFound, nil)
		return VerifyOutcome{}, deps.Errors.NotFound
	case errors.Is(err, stores.ErrChallengeExpired):
		o.MetricInc(metrics.MetricChallengeExpired)
		o.audit(ctx, eventType, subject, channel, deps.Errors.Expired, nil)
		return VerifyOutcome{}, deps.Errors.Expired
	case errors.Is(err, stores.ErrChallengeLocked):
		o.MetricInc(metrics.MetricChallengeAttemptsExceeded)
		after := fail()
		out := deps.Errors.Retry(deps.Errors.TooManyAttempts, after)
		o.audit(ctx, eventType, subject, channel, out, map[string]string{"reason": "attempts_exceeded"})
		return VerifyOutcome{RetryAfter: after}, out
	default:
		return VerifyOutcome{}, deps.Errors.Backend(err)
	}

	match, err := matchCandidate(ctx, subject, candidate, rec, cs, now, &deps)
	if err != nil {
		return VerifyOutcome{AttemptsRemaining: rec.AttemptsRemaining()}, err
	}
	if !match {
		o.MetricInc(metrics.MetricChallengeInvalidCode)
		after := fail()
		out := deps.Errors.InvalidCode
		if after > 0 {
			out = deps.Errors.Retry(out, after)
		}
		o.audit(ctx, eventType, subject, channel, out, nil)
		return VerifyOutcome{AttemptsRemaining: rec.AttemptsRemaining(), RetryAfter: after}, out
	}

	if opts.BeforeConsume != nil {
		if err := opts.BeforeConsume(ctx); err != nil {
			return VerifyOutcome{AttemptsRemaining: rec.AttemptsRemaining()}, err
		}
	}

	if err := deps.Store.Consume(ctx, subject, channel, rec.ID, now); err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeExpired):
			o.MetricInc(metrics.MetricChallengeExpired)
			return VerifyOutcome{}, deps.Errors.Expired
		case errors.Is(err, stores.ErrChallengeNotFound):
			o.MetricInc(metrics.MetricChallengeNotFound)
			o.audit(ctx, eventType, subject, channel, deps.Errors.NotFound, map[string]string{"reason": "lost_race"})
			return VerifyOutcome{}, deps.Errors.NotFound
		default:
			return VerifyOutcome{}, deps.Errors.Backend(err)
		}
	}

	if _, err := deps.Guard(ctx, subject, cs.VerifyClass, limiters.OutcomeSuccess); err != nil {
		o.Logger.Warn("lockout guard reset failed",
			zap.String("subject", subject), zap.String("action_class", cs.VerifyClass), zap.Error(err))
	}
	o.MetricInc(metrics.MetricChallengeVerifySuccess)
	o.audit(ctx, eventType, subject, channel, nil, nil)
	return VerifyOutcome{}, nil
}

func matchCandidate(ctx context.Context, subject, candidate string, rec *stores.ChallengeRecord, cs ChannelSpec, now time.Time, deps *ChallengeDeps) (bool, error) {
	if !cs.Authenticator {
		return codes.Equal(codes.Hash(candidate), rec.SecretHash), nil
	}

	if deps.Lookup == nil || deps.VerifyTOTP == nil || deps.ClaimTOTPStep == nil {
		return false, deps.Errors.Backend(errors.New("totp verification not configured"))
	}
	rcpt, err := deps.Lookup(ctx, subject)
	if err != nil {
		if errors.Is(err, deps.Errors.SubjectNotFound) {
			return false, nil
		}
		return false, deps.Errors.Backend(err)
	}
	// Decoy instances land here too; they never match.
	if len(rcpt.TOTPSecret) == 0 {
		return false, nil
	}
	step, ok, err := deps.VerifyTOTP(rcpt.TOTPSecret, candidate, now)
	if err != nil || !ok {
		return false, err
	}
	claimed, err := deps.ClaimTOTPStep(ctx, subject, step)
	if err != nil {
		return false, deps.Errors.Backend(err)
	}
	return claimed, nil
}

// RunChallengeStatus reports the current instance without mutating it.
// A missing instance is reported as state "none" so the answer does not
// reveal whether the subject exists.
func RunChallengeStatus(ctx context.Context, subject, channel string, deps ChallengeDeps) (StatusResult, error) {
	normalizeChallengeDeps(&deps)

	if _, ok := deps.Channel(channel); !ok || strings.TrimSpace(subject) == "" {
		return StatusResult{}, deps.Errors.Validation
	}
	if deps.Store == nil {
		return StatusResult{}, deps.Errors.Backend(errors.New("challenge flow not configured"))
	}

	now := deps.Now()
	res := StatusResult{
		Subject:           subject,
		Channel:           channel,
		State:             stores.StateNone.String(),
		ResendAvailable:   true,
		ResendAvailableAt: now,
	}

	rec, err := deps.Store.Get(ctx, subject, channel)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) {
			return res, nil
		}
		return StatusResult{}, deps.Errors.Backend(err)
	}

	state := rec.State
	if state == stores.StateIssued && now.After(rec.ExpiresAt) {
		state = stores.StateExpired
	}
	res.State = state.String()
	res.IssuedAt = rec.IssuedAt
	res.ExpiresAt = rec.ExpiresAt
	if state == stores.StateIssued {
		res.AttemptsRemaining = rec.AttemptsRemaining()
	}
	res.ResendAvailableAt = rec.IssuedAt.Add(deps.Cooldown)
	res.ResendAvailable = !now.Before(res.ResendAvailableAt)
	return res, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
