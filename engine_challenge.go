package goCred

import (
	"context"

	"github.com/MrEthical07/goCred/internal/flows"
)

// IssueChallenge mints a code for (subject, channel), stores its hash as the
// only active instance and delivers it. Any prior instance stops validating.
// Delivery failure is reported in ChallengeHandle.Delivery and does not undo
// the issue. Unknown subjects fail with ErrSubjectNotFound; use
// ResendChallenge for caller-facing paths.
//
//	Docs: docs/challenges.md
func (e *Engine) IssueChallenge(ctx context.Context, subject string, channel Channel) (ChallengeHandle, error) {
	if e == nil {
		return ChallengeHandle{}, ErrEngineNotReady
	}
	if _, err := ParseChannel(string(channel)); err != nil {
		return ChallengeHandle{}, err
	}
	res, err := flows.RunIssueChallenge(ctx, subject, string(channel), flows.IssueOptions{}, e.flows.Challenge)
	if err != nil {
		return ChallengeHandle{}, err
	}
	return handleFrom(res), nil
}

// ResendChallenge is IssueChallenge guarded by the resend lockout class and
// the resend cooldown. A resend inside the cooldown fails with
// ErrResendCooldown and counts as a resend failure. Unknown subjects get an
// undelivered decoy instance, so cooldown, status and verification answer
// as they would for a real subject.
func (e *Engine) ResendChallenge(ctx context.Context, subject string, channel Channel) (ChallengeHandle, error) {
	if e == nil {
		return ChallengeHandle{}, ErrEngineNotReady
	}
	if _, err := ParseChannel(string(channel)); err != nil {
		return ChallengeHandle{}, err
	}
	res, err := flows.RunIssueChallenge(ctx, subject, string(channel), flows.IssueOptions{Resend: true, Cooldown: true}, e.flows.Challenge)
	if err != nil {
		return ChallengeHandle{}, err
	}
	return handleFrom(res), nil
}

// VerifyChallenge checks candidate against the active instance.
//
// The lockout guard is consulted first; while locked, the active instance is
// burned and the call fails with ErrTooManyAttempts, or ErrLockedOut when
// there was none. Otherwise one attempt is reserved atomically: an expired
// instance fails with ErrExpired without counting, a missing or consumed one
// with ErrNotFound, and an instance past its attempt cap with
// ErrTooManyAttempts. A mismatch fails with ErrInvalidCode. A match consumes
// the instance; of two concurrent correct candidates exactly one succeeds.
//
// The returned error is nil iff result.Success.
func (e *Engine) VerifyChallenge(ctx context.Context, subject string, channel Channel, candidate string) (VerifyResult, error) {
	if e == nil {
		return VerifyResult{Kind: KindUnavailable}, ErrEngineNotReady
	}
	if _, err := ParseChannel(string(channel)); err != nil {
		return VerifyResult{Kind: KindOf(err)}, err
	}
	out, err := flows.RunVerifyChallenge(ctx, subject, string(channel), candidate, flows.VerifyOptions{}, e.flows.Challenge)
	return verifyResult(out, err), err
}

// ChallengeStatus reports the active instance without mutating it. A subject
// with no instance reports state "none" and resend available.
func (e *Engine) ChallengeStatus(ctx context.Context, subject string, channel Channel) (ChallengeStatus, error) {
	if e == nil {
		return ChallengeStatus{}, ErrEngineNotReady
	}
	if _, err := ParseChannel(string(channel)); err != nil {
		return ChallengeStatus{}, err
	}
	res, err := flows.RunChallengeStatus(ctx, subject, string(channel), e.flows.Challenge)
	if err != nil {
		return ChallengeStatus{}, err
	}
	return ChallengeStatus{
		Subject:           res.Subject,
		Channel:           Channel(res.Channel),
		State:             res.State,
		IssuedAt:          res.IssuedAt,
		ExpiresAt:         res.ExpiresAt,
		AttemptsRemaining: res.AttemptsRemaining,
		ResendAvailable:   res.ResendAvailable,
		ResendAvailableAt: res.ResendAvailableAt,
	}, nil
}

func handleFrom(res flows.IssueResult) ChallengeHandle {
	return ChallengeHandle{
		Subject:   res.Subject,
		Channel:   Channel(res.Channel),
		IssuedAt:  res.IssuedAt,
		ExpiresAt: res.ExpiresAt,
		Delivery: Delivery{
			Attempted: res.Delivery.Attempted,
			Queued:    res.Delivery.Queued,
			Result: DeliveryResult{
				Provider:  res.Delivery.Provider,
				MessageID: res.Delivery.MessageID,
				SentAt:    res.Delivery.SentAt,
			},
			Err: res.Delivery.Err,
		},
	}
}

func verifyResult(out flows.VerifyOutcome, err error) VerifyResult {
	res := VerifyResult{
		Success:           err == nil,
		Kind:              KindOf(err),
		RetryAfter:        out.RetryAfter,
		AttemptsRemaining: out.AttemptsRemaining,
	}
	if res.RetryAfter == 0 {
		res.RetryAfter, _ = RetryAfter(err)
	}
	return res
}
