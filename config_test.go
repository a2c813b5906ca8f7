package goCred

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Challenge.EmailOTP.TTL != 10*time.Minute || cfg.Challenge.EmailOTP.MaxAttempts != 5 {
		t.Fatalf("unexpected email otp defaults %+v", cfg.Challenge.EmailOTP)
	}
	if cfg.Challenge.PasswordReset.TTL != time.Hour {
		t.Fatalf("unexpected reset ttl %s", cfg.Challenge.PasswordReset.TTL)
	}
	if cfg.Challenge.ResendCooldown != time.Minute {
		t.Fatalf("unexpected cooldown %s", cfg.Challenge.ResendCooldown)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"weak argon2 memory", func(c *Config) { c.Password.Memory = 1024 }, "password"},
		{"zero otp ttl", func(c *Config) { c.Challenge.EmailOTP.TTL = 0 }, "email_otp.ttl"},
		{"zero otp attempts", func(c *Config) { c.Challenge.EmailOTP.MaxAttempts = 0 }, "email_otp.max_attempts"},
		{"otp digits", func(c *Config) { c.Challenge.EmailOTP.CodeDigits = 3 }, "code_digits"},
		{"short reset token", func(c *Config) { c.Challenge.PasswordReset.TokenBytes = 8 }, "token_bytes"},
		{"totp digits", func(c *Config) { c.Challenge.TOTP.Digits = 7 }, "totp.digits"},
		{"totp algorithm", func(c *Config) { c.Challenge.TOTP.Algorithm = "MD5" }, "totp.algorithm"},
		{"negative cooldown", func(c *Config) { c.Challenge.ResendCooldown = -time.Second }, "cooldown"},
		{"inverted delay", func(c *Config) {
			c.Challenge.EnumerationDelayMin = time.Second
			c.Challenge.EnumerationDelayMax = time.Millisecond
		}, "enumeration delay"},
		{"lockout default", func(c *Config) { c.Lockout.Default.MaxFailures = 0 }, "lockout.default"},
		{"lockout class", func(c *Config) {
			c.Lockout.Classes = map[string]LockoutPolicy{ClassLogin: {MaxFailures: 3}}
		}, "lockout.classes.login"},
		{"session ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"cookie name", func(c *Config) { c.Session.CookieName = "" }, "cookie_name"},
		{"reset url", func(c *Config) { c.Reset.URL = "ftp://example.test" }, "reset.url"},
		{"audit buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, "audit.buffer_size"},
		{"async workers", func(c *Config) {
			c.Notify.Async = true
			c.Notify.Workers = 0
		}, "notify"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLockoutPolicyPerClass(t *testing.T) {
	cfg := DefaultConfig()
	strict := LockoutPolicy{MaxFailures: 3, Window: time.Minute, LockDuration: time.Hour}
	cfg.Lockout.Classes = map[string]LockoutPolicy{ClassResend: strict}

	if got := cfg.lockoutPolicy(ClassResend); got != strict {
		t.Fatalf("class override ignored: %+v", got)
	}
	if got := cfg.lockoutPolicy(ClassLogin); got != cfg.Lockout.Default {
		t.Fatalf("default not applied: %+v", got)
	}
}

func TestCloneConfigIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.Classes = map[string]LockoutPolicy{ClassLogin: cfg.Lockout.Default}
	cfg.Session.PrivateKey = []byte(testSessionKey)

	out := cloneConfig(cfg)
	out.Lockout.Classes[ClassLogin] = LockoutPolicy{MaxFailures: 1, Window: time.Second, LockDuration: time.Second}
	out.Session.PrivateKey[0] = 'X'

	if cfg.Lockout.Classes[ClassLogin].MaxFailures != 5 {
		t.Fatal("clone shares the class map")
	}
	if cfg.Session.PrivateKey[0] != '0' {
		t.Fatal("clone shares the key bytes")
	}
}
