package goCred

import "context"

// CheckAndRecord applies outcome to the (subject, class) lockout ledger and
// reports whether the pair may proceed. OutcomeNone only checks. While a
// pair is locked, outcomes are not recorded; a success clears the ledger.
//
//	Docs: docs/lockout.md
func (e *Engine) CheckAndRecord(ctx context.Context, subject, class string, outcome Outcome) (GuardDecision, error) {
	if e == nil {
		return GuardDecision{}, ErrEngineNotReady
	}
	if subject == "" || class == "" {
		return GuardDecision{}, ErrValidation
	}
	d, err := e.guardCheck(ctx, subject, class, outcome)
	if err != nil {
		return GuardDecision{}, unavailable(err)
	}
	return GuardDecision{
		Allowed:     d.Allowed,
		Failures:    d.Failures,
		LockedUntil: d.LockedUntil,
		RetryAfter:  d.RetryAfter,
	}, nil
}

// LockoutState returns the ledger for (subject, class), if one exists.
func (e *Engine) LockoutState(ctx context.Context, subject, class string) (LockoutState, bool, error) {
	if e == nil {
		return LockoutState{}, false, ErrEngineNotReady
	}
	st, ok, err := e.guard.State(ctx, subject, class)
	if err != nil {
		return LockoutState{}, false, unavailable(err)
	}
	return st, ok, nil
}

// ResetLockout drops the ledger for (subject, class). Intended for support
// tooling.
func (e *Engine) ResetLockout(ctx context.Context, subject, class string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.guard.Reset(ctx, subject, class); err != nil {
		return unavailable(err)
	}
	return nil
}
