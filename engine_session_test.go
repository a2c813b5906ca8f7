package goCred

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goCred/session"
)

func TestIsValidHonorsTTL(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)

	grant, err := env.engine.IssueSession(context.Background(), session.Claims{Subject: "u1"}, time.Second)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if !env.engine.IsValid(grant.Payload) {
		t.Fatalf("fresh session should be valid")
	}

	env.clock.Advance(time.Second)
	if env.engine.IsValid(grant.Payload) {
		t.Fatalf("session should expire at issuedAt+ttl")
	}
}

func TestIssueSessionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)
	ctx := context.Background()

	_, err := env.engine.IssueSession(ctx, session.Claims{}, 0)
	requireIs(t, err, ErrValidation)

	_, err = env.engine.IssueSession(ctx, session.Claims{Subject: "u1"}, -time.Second)
	requireIs(t, err, ErrValidation)
}

func TestRefreshSessionKeepsSubject(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		grant, err := env.engine.IssueSession(ctx, session.Claims{Subject: "u1", Email: "alice@example.test"}, time.Hour)
		if err != nil {
			t.Fatalf("IssueSession: %v", err)
		}

		env.clock.Advance(30 * time.Minute)
		next, err := env.engine.RefreshSession(ctx, grant.Token, time.Hour)
		if err != nil {
			t.Fatalf("RefreshSession: %v", err)
		}
		if next.Payload.Subject != "u1" || next.Payload.ID != grant.Payload.ID {
			t.Fatalf("refresh changed identity: %+v", next.Payload)
		}
		if !next.Payload.ExpiresAt.After(grant.Payload.ExpiresAt) {
			t.Fatalf("refresh should extend expiry")
		}

		env.clock.Advance(45 * time.Minute)
		if _, err := env.engine.ValidateSession(ctx, grant.Token); err == nil {
			t.Fatalf("original token should be expired")
		}
		if _, err := env.engine.ValidateSession(ctx, next.Token); err != nil {
			t.Fatalf("refreshed token should be valid: %v", err)
		}
	})
}

func TestRefreshSessionStaleSubject(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend) {
		env := newTestEnv(t, be, nil)
		ctx := context.Background()

		grant, err := env.engine.IssueSession(ctx, session.Claims{Subject: "u1"}, 0)
		if err != nil {
			t.Fatalf("IssueSession: %v", err)
		}
		env.dir.remove("u1")

		_, err = env.engine.RefreshSession(ctx, grant.Token, 0)
		requireIs(t, err, ErrStaleSubject)
		requireKind(t, err, KindStaleSubject)

		_, err = env.engine.ValidateSession(ctx, grant.Token)
		requireIs(t, err, ErrUnauthorized)
		if got := env.engine.MetricsSnapshot().Counters[MetricSessionStale]; got != 1 {
			t.Fatalf("expected stale metric, got %d", got)
		}
	})
}

func TestValidateSessionRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)

	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := env.engine.ValidateSession(context.Background(), token)
		requireIs(t, err, ErrUnauthorized)
	}
}

func TestRefreshSessionBackendFailure(t *testing.T) {
	env := newTestEnv(t, backends[0], nil)
	ctx := context.Background()

	grant, err := env.engine.IssueSession(ctx, session.Claims{Subject: "u1"}, 0)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	env.dir.mu.Lock()
	env.dir.failAll = context.DeadlineExceeded
	env.dir.mu.Unlock()

	_, err = env.engine.RefreshSession(ctx, grant.Token, 0)
	requireIs(t, err, ErrUnavailable)

	// A directory outage must not revoke the session.
	env.dir.mu.Lock()
	env.dir.failAll = nil
	env.dir.mu.Unlock()
	if _, err := env.engine.ValidateSession(ctx, grant.Token); err != nil {
		t.Fatalf("session should survive a backend failure: %v", err)
	}
}
