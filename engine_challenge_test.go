package goCred

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestVerifyChallengeSucceedsOnceAndRejectsReplay(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		h, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP)
		if err != nil {
			t.Fatalf("IssueChallenge: %v", err)
		}
		if !h.Delivery.Attempted || h.Delivery.Err != nil {
			t.Fatalf("expected synchronous delivery, got %+v", h.Delivery)
		}
		if got := env.notifier.last(t).To; got != "alice@example.test" {
			t.Fatalf("unexpected recipient %q", got)
		}
		code := env.notifier.lastCode(t)

		res, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, wrongCode(code))
		requireIs(t, err, ErrInvalidCode)
		if res.Success || res.Kind != KindInvalidCode || res.AttemptsRemaining != 4 {
			t.Fatalf("unexpected result %+v", res)
		}

		res, err = env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code)
		if err != nil || !res.Success {
			t.Fatalf("expected success, got %+v err=%v", res, err)
		}

		_, err = env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code)
		requireIs(t, err, ErrNotFound)
	})
}

func TestVerifyChallengeAfterExpiryDoesNotCountAttempt(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
			t.Fatalf("IssueChallenge: %v", err)
		}
		code := env.notifier.lastCode(t)

		if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, wrongCode(code)); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected invalid code, got %v", err)
		}

		env.clock.Advance(10*time.Minute + time.Second)
		res, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code)
		requireIs(t, err, ErrExpired)
		if res.Kind != KindExpired {
			t.Fatalf("expected expired kind, got %s", res.Kind)
		}

		rec, err := env.engine.challenges.Get(ctx, "u1", string(ChannelEmailOTP))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Attempts != 1 {
			t.Fatalf("expired verification must not count, attempts=%d", rec.Attempts)
		}

		st, err := env.engine.ChallengeStatus(ctx, "u1", ChannelEmailOTP)
		if err != nil {
			t.Fatalf("ChallengeStatus: %v", err)
		}
		if st.State != "expired" {
			t.Fatalf("expected expired state, got %q", st.State)
		}
	})
}

func TestIssueChallengeInvalidatesPriorCode(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
			t.Fatalf("first issue: %v", err)
		}
		first := env.notifier.lastCode(t)
		if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
			t.Fatalf("second issue: %v", err)
		}
		second := env.notifier.lastCode(t)
		if first == second {
			t.Skip("generator produced the same code twice")
		}

		_, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, first)
		requireIs(t, err, ErrInvalidCode)

		if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, second); err != nil {
			t.Fatalf("expected newest code to verify: %v", err)
		}
	})
}

func TestSixthAttemptAfterFiveFailuresIsRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
			t.Fatalf("IssueChallenge: %v", err)
		}
		code := env.notifier.lastCode(t)

		for i := 0; i < 5; i++ {
			if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, wrongCode(code)); !errors.Is(err, ErrInvalidCode) {
				t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
			}
		}

		res, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code)
		requireIs(t, err, ErrTooManyAttempts)
		if res.Success || res.Kind != KindTooManyAttempts {
			t.Fatalf("unexpected result %+v", res)
		}
		if res.RetryAfter <= 0 {
			t.Fatalf("expected retry-after hint, got %s", res.RetryAfter)
		}

		st, ok, err := env.engine.LockoutState(ctx, "u1", ClassOTPVerify)
		if err != nil || !ok {
			t.Fatalf("LockoutState: ok=%v err=%v", ok, err)
		}
		if !st.LockedUntil.After(env.clock.Now()) {
			t.Fatalf("expected active lock, got %+v", st)
		}
	})
}

func TestAttemptCapLocksChallengeWithoutGuard(t *testing.T) {
	env := newTestEnv(t, backends[0], func(cfg *Config, _ *Credential) {
		cfg.Lockout.Classes = map[string]LockoutPolicy{
			ClassOTPVerify: {MaxFailures: 100, Window: time.Hour, LockDuration: time.Hour},
		}
	})
	ctx := context.Background()

	if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	code := env.notifier.lastCode(t)

	for i := 0; i < 5; i++ {
		if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, wrongCode(code)); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i+1, err)
		}
	}

	_, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code)
	requireIs(t, err, ErrTooManyAttempts)

	// A locked instance stays locked until a new one is issued.
	_, err = env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code)
	requireIs(t, err, ErrTooManyAttempts)
}

func TestConcurrentVerifySucceedsExactlyOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, func(cfg *Config, _ *Credential) {
			cfg.Challenge.EmailOTP.MaxAttempts = 32
			cfg.Lockout.Classes = map[string]LockoutPolicy{
				ClassOTPVerify: {MaxFailures: 100, Window: time.Hour, LockDuration: time.Hour},
			}
		})
		ctx := context.Background()

		if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
			t.Fatalf("IssueChallenge: %v", err)
		}
		code := env.notifier.lastCode(t)

		const workers = 16
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			start     = make(chan struct{})
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code); err == nil {
					successes.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := successes.Load(); got != 1 {
			t.Fatalf("expected exactly one success, got %d", got)
		}
	})
}

func TestVerifyChallengeRejectsMalformedCandidate(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)
	ctx := context.Background()

	if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	for _, candidate := range []string{"", "12ab56", "1234567", "12345"} {
		res, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, candidate)
		requireIs(t, err, ErrValidation)
		if res.Kind != KindValidation {
			t.Fatalf("candidate %q: expected validation kind, got %s", candidate, res.Kind)
		}
	}

	st, err := env.engine.ChallengeStatus(ctx, "u1", ChannelEmailOTP)
	if err != nil {
		t.Fatalf("ChallengeStatus: %v", err)
	}
	if st.AttemptsRemaining != 5 {
		t.Fatalf("malformed candidates must not count, remaining=%d", st.AttemptsRemaining)
	}

	_, err = env.engine.VerifyChallenge(ctx, "u1", Channel("sms"), "123456")
	requireIs(t, err, ErrUnknownChannel)
	requireKind(t, err, KindValidation)
}

func TestVerifyWithoutChallengeLocksOutAfterRepeatedMisses(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, "123456"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: expected not found, got %v", i+1, err)
		}
	}

	_, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, "123456")
	requireIs(t, err, ErrLockedOut)
	if d, ok := RetryAfter(err); !ok || d <= 0 {
		t.Fatalf("expected retry hint on lockout, got %s ok=%v", d, ok)
	}
}

func TestResendChallengeCooldown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
			t.Fatalf("IssueChallenge: %v", err)
		}
		first := env.notifier.lastCode(t)

		env.clock.Advance(10 * time.Second)
		_, err := env.engine.ResendChallenge(ctx, "u1", ChannelEmailOTP)
		requireIs(t, err, ErrResendCooldown)
		requireKind(t, err, KindResendCooldown)
		d, ok := RetryAfter(err)
		if !ok || d <= 0 || d > 50*time.Second {
			t.Fatalf("unexpected retry hint %s ok=%v", d, ok)
		}
		if env.notifier.count() != 1 {
			t.Fatalf("cooldown rejection must not send, sent=%d", env.notifier.count())
		}

		// The rejected resend leaves the original code usable.
		if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, first); err != nil {
			t.Fatalf("original code should still verify: %v", err)
		}

		env.clock.Advance(time.Minute)
		h, err := env.engine.ResendChallenge(ctx, "u1", ChannelEmailOTP)
		if err != nil {
			t.Fatalf("resend after cooldown: %v", err)
		}
		if !h.IssuedAt.Equal(env.clock.Now()) {
			t.Fatalf("unexpected issued at %s", h.IssuedAt)
		}
		if env.notifier.count() != 2 {
			t.Fatalf("expected a second message, sent=%d", env.notifier.count())
		}
	})
}

func TestResendFloodLocksOut(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)
	ctx := context.Background()

	if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP); err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := env.engine.ResendChallenge(ctx, "u1", ChannelEmailOTP); !errors.Is(err, ErrResendCooldown) {
			t.Fatalf("resend %d: expected cooldown, got %v", i+1, err)
		}
	}

	env.clock.Advance(2 * time.Minute)
	_, err := env.engine.ResendChallenge(ctx, "u1", ChannelEmailOTP)
	requireIs(t, err, ErrLockedOut)
}

func TestResendUnknownSubjectLooksSuccessful(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		h, err := env.engine.ResendChallenge(ctx, "ghost", ChannelEmailOTP)
		if err != nil {
			t.Fatalf("expected success-shaped answer, got %v", err)
		}
		if h.Subject != "ghost" || h.ExpiresAt.Sub(h.IssuedAt) != 10*time.Minute {
			t.Fatalf("unexpected handle %+v", h)
		}
		if env.notifier.count() != 0 {
			t.Fatalf("nothing should be sent for an unknown subject")
		}

		st, err := env.engine.ChallengeStatus(ctx, "ghost", ChannelEmailOTP)
		if err != nil {
			t.Fatalf("ChallengeStatus: %v", err)
		}
		if st.State != "issued" || st.ResendAvailable {
			t.Fatalf("expected an undelivered instance in cooldown, got %+v", st)
		}

		_, err = env.engine.IssueChallenge(ctx, "ghost", ChannelEmailOTP)
		requireIs(t, err, ErrSubjectNotFound)
	})
}

func TestResendAnswersAlikeForKnownAndUnknownSubjects(t *testing.T) {
	type observed struct {
		first, second, verify ErrorKind
		retry                 time.Duration
		state                 string
		attempts              int
		resendAvailable       bool
	}

	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		var candidate string
		observe := func(subject string) observed {
			t.Helper()
			var o observed
			_, err := env.engine.ResendChallenge(ctx, subject, ChannelEmailOTP)
			o.first = KindOf(err)
			_, err = env.engine.ResendChallenge(ctx, subject, ChannelEmailOTP)
			o.second = KindOf(err)
			o.retry, _ = RetryAfter(err)

			st, err := env.engine.ChallengeStatus(ctx, subject, ChannelEmailOTP)
			if err != nil {
				t.Fatalf("ChallengeStatus(%s): %v", subject, err)
			}
			o.state, o.attempts, o.resendAvailable = st.State, st.AttemptsRemaining, st.ResendAvailable

			if candidate == "" {
				candidate = wrongCode(env.notifier.lastCode(t))
			}
			res, _ := env.engine.VerifyChallenge(ctx, subject, ChannelEmailOTP, candidate)
			o.verify = res.Kind
			return o
		}

		known, unknown := observe("u1"), observe("ghost")
		if known != unknown {
			t.Fatalf("answers differ:\n known   %+v\n unknown %+v", known, unknown)
		}
		if known.second != KindResendCooldown || known.state != "issued" {
			t.Fatalf("unexpected answers %+v", known)
		}
		if env.notifier.count() != 1 {
			t.Fatalf("only the known subject gets a message, sent %d", env.notifier.count())
		}
	})
}

func TestChallengeStatusDrivesResendCountdown(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)
	ctx := context.Background()

	st, err := env.engine.ChallengeStatus(ctx, "u1", ChannelEmailOTP)
	if err != nil {
		t.Fatalf("ChallengeStatus: %v", err)
	}
	if st.State != "none" || !st.ResendAvailable {
		t.Fatalf("unexpected empty status %+v", st)
	}

	h, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	st, err = env.engine.ChallengeStatus(ctx, "u1", ChannelEmailOTP)
	if err != nil {
		t.Fatalf("ChallengeStatus: %v", err)
	}
	if st.State != "issued" || st.AttemptsRemaining != 5 || st.ResendAvailable {
		t.Fatalf("unexpected issued status %+v", st)
	}
	if want := h.IssuedAt.Add(time.Minute); !st.ResendAvailableAt.Equal(want) {
		t.Fatalf("resend available at %s, want %s", st.ResendAvailableAt, want)
	}

	env.clock.Advance(time.Minute)
	st, err = env.engine.ChallengeStatus(ctx, "u1", ChannelEmailOTP)
	if err != nil {
		t.Fatalf("ChallengeStatus: %v", err)
	}
	if !st.ResendAvailable {
		t.Fatalf("resend should be available after the cooldown")
	}
}

func TestDeliveryFailureKeepsChallengeIssued(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)
	env.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	h, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP)
	if err != nil {
		t.Fatalf("delivery failure must not fail the issue: %v", err)
	}
	if !errors.Is(h.Delivery.Err, ErrDelivery) {
		t.Fatalf("expected delivery error, got %v", h.Delivery.Err)
	}

	code := env.notifier.lastCode(t)
	if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelEmailOTP, code); err != nil {
		t.Fatalf("challenge should remain verifiable: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDeliveryFailure]; got != 1 {
		t.Fatalf("expected one delivery failure, got %d", got)
	}
}

func TestAsyncDeliveryQueuesNotification(t *testing.T) {
	env := newTestEnv(t, backends[0], func(cfg *Config, _ *Credential) {
		cfg.Notify.Async = true
	})
	ctx := context.Background()

	h, err := env.engine.IssueChallenge(ctx, "u1", ChannelEmailOTP)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	if !h.Delivery.Queued || h.Delivery.Attempted {
		t.Fatalf("expected queued delivery, got %+v", h.Delivery)
	}

	env.engine.Close()
	if env.notifier.count() != 1 {
		t.Fatalf("queued message should be sent before Close returns")
	}
}

func TestTOTPChallenge(t *testing.T) {
	secret := []byte("12345678901234567890")
	env := newTestEnv(t, backends[0], func(_ *Config, cred *Credential) {
		cred.TOTPSecret = secret
	})
	ctx := context.Background()

	if _, err := env.engine.IssueChallenge(ctx, "u1", ChannelTOTP); err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	if env.notifier.count() != 0 {
		t.Fatalf("totp challenges deliver nothing")
	}

	code, err := hotpCode(secret, env.clock.Now().Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode: %v", err)
	}
	_, err = env.engine.VerifyChallenge(ctx, "u1", ChannelTOTP, wrongCode(code))
	requireIs(t, err, ErrInvalidCode)

	if _, err := env.engine.VerifyChallenge(ctx, "u1", ChannelTOTP, code); err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}
	_, err = env.engine.VerifyChallenge(ctx, "u1", ChannelTOTP, code)
	requireIs(t, err, ErrNotFound)
}

func TestTOTPChallengeRequiresEnrollment(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)

	_, err := env.engine.IssueChallenge(context.Background(), "u1", ChannelTOTP)
	requireIs(t, err, ErrChannelNotConfigured)
	requireKind(t, err, KindValidation)
}
