package goCred

import (
	"context"

	"github.com/MrEthical07/goCred/internal/flows"
)

// ChangePassword replaces the password of an authenticated subject.
//
// The new password is checked against policy before anything else; a
// candidate equal to current fails with a *PolicyError that matches
// ErrPasswordReuse, and no storage is touched. A wrong current password
// fails with ErrInvalidCredentials and counts against the password-confirm
// lockout class. On success a security alert is sent best effort.
//
//	Docs: docs/password.md
func (e *Engine) ChangePassword(ctx context.Context, subject, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunChangePassword(ctx, subject, current, next, e.flows.Password)
}

// RequestPasswordReset sends a reset link to email if it belongs to an
// account. It returns nil whether or not the email matched; only a
// malformed email fails, with ErrValidation.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestPasswordReset(ctx, email, e.flows.Password)
}

// ConfirmPasswordReset verifies the reset token for subject and installs
// next. Token failures carry the same kinds as VerifyChallenge. A candidate
// equal to the current password fails with ErrPasswordReuse and leaves the
// token usable. The token is consumed before the directory write; if that
// write fails the call returns ErrResetIncomplete (and ErrUnavailable) and
// the user needs a new link.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, subject, token, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunConfirmPasswordReset(ctx, subject, token, next, e.flows.Password)
}
