package goCred

import (
	"context"

	"github.com/MrEthical07/goCred/internal/flows"
	"github.com/MrEthical07/goCred/session"
)

// Login authenticates by email and password. Accounts with a second factor
// get MFARequired and an issued challenge instead of a session; finish with
// ConfirmLogin.
//
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials
// and count against the login lockout class for that email.
//
//	Docs: docs/login.md
func (e *Engine) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	out, err := flows.RunLogin(ctx, email, password, e.flows.Login)
	if err != nil {
		return LoginResult{}, err
	}

	res := LoginResult{Subject: out.Subject}
	if out.MFARequired {
		h := handleFrom(*out.Challenge)
		res.MFARequired = true
		res.Channel = Channel(out.Channel)
		res.Challenge = &h
		return res, nil
	}

	grant, err := e.IssueSession(ctx, session.Claims{Subject: out.Subject, Email: out.Email}, 0)
	if err != nil {
		return LoginResult{}, err
	}
	res.Session = &grant
	return res, nil
}

// ConfirmLogin verifies the step-up code from Login and issues the session.
// Only ChannelEmailOTP and ChannelTOTP are accepted.
func (e *Engine) ConfirmLogin(ctx context.Context, subject string, channel Channel, code string) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	if channel != ChannelEmailOTP && channel != ChannelTOTP {
		return LoginResult{}, ErrValidation
	}

	if _, err := flows.RunVerifyChallenge(ctx, subject, string(channel), code, flows.VerifyOptions{}, e.flows.Challenge); err != nil {
		return LoginResult{}, err
	}

	acct, err := e.lookupAccount(ctx, subject)
	if err != nil {
		return LoginResult{}, unavailable(err)
	}
	e.metricInc(MetricLoginSuccess)

	grant, err := e.IssueSession(ctx, session.Claims{Subject: subject, Email: acct.Email}, 0)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Subject: subject, Channel: channel, Session: &grant}, nil
}
