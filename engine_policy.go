package goCred

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/policy"
	"go.uber.org/zap"
)

// ScorePassword rates password from 0 to 5. It has no side effects.
func (e *Engine) ScorePassword(pw string) policy.Strength {
	return policy.Score(pw)
}

// ValidatePassword applies the configured hard-reject rules.
func (e *Engine) ValidatePassword(pw string) policy.Result {
	if e == nil {
		return policy.Default().Validate(pw)
	}
	return e.policy.Validate(pw)
}

// HashPassword validates pw and returns its Argon2id PHC hash, for signup
// flows that store credentials themselves.
func (e *Engine) HashPassword(pw string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	if res := e.policy.Validate(pw); !res.Valid {
		return "", &PolicyError{Violations: res.Violations}
	}
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return "", err
	}
	return hash, nil
}

// NewTOTPEnrollment generates an authenticator secret and its otpauth URI.
// The caller stores Secret on the credential before enabling ChannelTOTP.
func (e *Engine) NewTOTPEnrollment(account string) (TOTPEnrollment, error) {
	if e == nil {
		return TOTPEnrollment{}, ErrEngineNotReady
	}
	if account == "" {
		return TOTPEnrollment{}, ErrValidation
	}
	return e.totp.enroll(account)
}

// SendWelcome renders and sends the welcome message to subject. Failures
// are returned wrapped in ErrDelivery.
func (e *Engine) SendWelcome(ctx context.Context, subject string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	acct, err := e.lookupAccount(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return err
		}
		return unavailable(err)
	}
	rep := e.send(ctx, MessageWelcome, MessageData{To: acct.Email, Name: acct.Name})
	if rep.Err != nil {
		e.metricInc(MetricDeliveryFailure)
		e.logger.Warn("welcome delivery failed", zap.String("subject", subject), zap.Error(rep.Err))
		return rep.Err
	}
	return nil
}
