package goCred

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
)

// Config is the complete engine configuration. Obtain defaults from
// [DefaultConfig], adjust, then pass to [Builder.WithConfig]; the builder
// keeps its own copy.
//
//	Docs: docs/config.md
type Config struct {
	Password  PasswordConfig  `yaml:"password"`
	Policy    PolicyConfig    `yaml:"policy"`
	Challenge ChallengeConfig `yaml:"challenge"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	Session   SessionConfig   `yaml:"session"`
	Reset     ResetConfig     `yaml:"reset"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Notify    NotifyConfig    `yaml:"notify"`
	Redis     RedisConfig     `yaml:"redis"`
}

// PasswordConfig holds Argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory           uint32 `yaml:"memory_kib"`
	Time             uint32 `yaml:"time"`
	Parallelism      uint8  `yaml:"parallelism"`
	SaltLength       uint32 `yaml:"salt_length"`
	KeyLength        uint32 `yaml:"key_length"`
	MaxPasswordBytes int    `yaml:"max_password_bytes"`
	// UpgradeOnLogin rehashes stored hashes with weaker parameters after a
	// successful login.
	UpgradeOnLogin bool `yaml:"upgrade_on_login"`
}

// PolicyConfig controls the hard-reject rules for new passwords.
type PolicyConfig struct {
	RequireClasses bool `yaml:"require_classes"`
}

// ChannelConfig sizes one code-bearing channel.
type ChannelConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	// CodeDigits applies to numeric codes, TokenBytes to opaque tokens.
	CodeDigits int `yaml:"code_digits"`
	TokenBytes int `yaml:"token_bytes"`
}

// TOTPConfig controls the authenticator channel.
type TOTPConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	Issuer      string        `yaml:"issuer"`
	Period      int           `yaml:"period"`
	Digits      int           `yaml:"digits"`
	Algorithm   string        `yaml:"algorithm"`
	Skew        int           `yaml:"skew"`
}

// ChallengeConfig controls the verification state machine.
type ChallengeConfig struct {
	EmailOTP      ChannelConfig `yaml:"email_otp"`
	PasswordReset ChannelConfig `yaml:"password_reset"`
	TOTP          TOTPConfig    `yaml:"totp"`
	// ResendCooldown is the minimum gap between two issues for one pair.
	ResendCooldown time.Duration `yaml:"resend_cooldown"`
	// Retention keeps terminal records after expiry so cooldown and replay
	// rejection survive.
	Retention time.Duration `yaml:"retention"`
	// EnumerationDelay bounds the random delay added on unknown-subject
	// paths of forgot-password and resend.
	EnumerationDelayMin time.Duration `yaml:"enumeration_delay_min"`
	EnumerationDelayMax time.Duration `yaml:"enumeration_delay_max"`
}

// LockoutConfig holds the default guard policy and per-class overrides.
type LockoutConfig struct {
	Default LockoutPolicy            `yaml:"default"`
	Classes map[string]LockoutPolicy `yaml:"classes"`
}

// SessionConfig controls issued sessions and their cookie encoding.
type SessionConfig struct {
	TTL           time.Duration     `yaml:"ttl"`
	SigningMethod jwt.SigningMethod `yaml:"signing_method"`
	PrivateKey    []byte            `yaml:"-"`
	PublicKey     []byte            `yaml:"-"`
	Issuer        string            `yaml:"issuer"`
	Audience      string            `yaml:"audience"`
	Leeway        time.Duration     `yaml:"leeway"`
	CookieName    string            `yaml:"cookie_name"`
}

// ResetConfig controls reset-link rendering.
type ResetConfig struct {
	// URL is the base the token is appended to, for example
	// https://example.com/reset-password.
	URL string `yaml:"url"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// NotifyConfig controls delivery. With Async set, deliveries run on a
// bounded queue after the challenge is stored and ChallengeHandle.Delivery
// reports Queued.
type NotifyConfig struct {
	Async     bool          `yaml:"async"`
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RedisConfig namespaces keys when a Redis client is supplied.
type RedisConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultConfig returns the production defaults. Session keys are left
// empty and must be supplied.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Policy: PolicyConfig{RequireClasses: true},
		Challenge: ChallengeConfig{
			EmailOTP: ChannelConfig{
				TTL:         10 * time.Minute,
				MaxAttempts: 5,
				CodeDigits:  6,
			},
			PasswordReset: ChannelConfig{
				TTL:         60 * time.Minute,
				MaxAttempts: 5,
				TokenBytes:  32,
			},
			TOTP: TOTPConfig{
				TTL:         5 * time.Minute,
				MaxAttempts: 5,
				Issuer:      "goCred",
				Period:      30,
				Digits:      6,
				Algorithm:   "SHA1",
				Skew:        1,
			},
			ResendCooldown:      60 * time.Second,
			Retention:           15 * time.Minute,
			EnumerationDelayMin: 20 * time.Millisecond,
			EnumerationDelayMax: 40 * time.Millisecond,
		},
		Lockout: LockoutConfig{
			Default: LockoutPolicy{
				MaxFailures:  5,
				Window:       15 * time.Minute,
				LockDuration: 15 * time.Minute,
			},
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "goCred",
			CookieName:    "gocred_session",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			Workers:   2,
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		Redis: RedisConfig{KeyPrefix: "gocred"},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if err := c.passwordConfig().Validate(); err != nil {
		return fmt.Errorf("password: %w", err)
	}

	if err := validateChannel("challenge.email_otp", c.Challenge.EmailOTP); err != nil {
		return err
	}
	if d := c.Challenge.EmailOTP.CodeDigits; d < 4 || d > 10 {
		return errors.New("challenge.email_otp.code_digits must be between 4 and 10")
	}
	if err := validateChannel("challenge.password_reset", c.Challenge.PasswordReset); err != nil {
		return err
	}
	if b := c.Challenge.PasswordReset.TokenBytes; b < 16 || b > 128 {
		return errors.New("challenge.password_reset.token_bytes must be between 16 and 128")
	}

	t := c.Challenge.TOTP
	if t.TTL <= 0 || t.MaxAttempts <= 0 {
		return errors.New("challenge.totp ttl and max_attempts must be positive")
	}
	if t.Period <= 0 || t.Skew < 0 || t.Skew > 3 {
		return errors.New("challenge.totp period must be positive and skew within [0,3]")
	}
	if t.Digits != 6 && t.Digits != 8 {
		return errors.New("challenge.totp.digits must be 6 or 8")
	}
	if _, err := hmacFunc(t.Algorithm); err != nil {
		return fmt.Errorf("challenge.totp.algorithm: %w", err)
	}

	if c.Challenge.ResendCooldown < 0 || c.Challenge.Retention < 0 {
		return errors.New("challenge cooldown and retention must not be negative")
	}
	if c.Challenge.EnumerationDelayMin < 0 || c.Challenge.EnumerationDelayMax < c.Challenge.EnumerationDelayMin {
		return errors.New("challenge enumeration delay range is invalid")
	}

	if err := validatePolicy("lockout.default", c.Lockout.Default); err != nil {
		return err
	}
	for class, p := range c.Lockout.Classes {
		if strings.TrimSpace(class) == "" {
			return errors.New("lockout.classes contains an empty class")
		}
		if err := validatePolicy("lockout.classes."+class, p); err != nil {
			return err
		}
	}

	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if c.Session.CookieName == "" {
		return errors.New("session.cookie_name is required")
	}
	if c.Reset.URL != "" && !strings.HasPrefix(c.Reset.URL, "https://") && !strings.HasPrefix(c.Reset.URL, "http://") {
		return errors.New("reset.url must be an absolute http(s) URL")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit.buffer_size must be positive when audit is enabled")
	}
	if c.Notify.Async && (c.Notify.Workers <= 0 || c.Notify.QueueSize <= 0) {
		return errors.New("notify workers and queue_size must be positive when async")
	}
	if c.Notify.Timeout < 0 {
		return errors.New("notify.timeout must not be negative")
	}
	return nil
}

func validateChannel(name string, ch ChannelConfig) error {
	if ch.TTL <= 0 {
		return fmt.Errorf("%s.ttl must be positive", name)
	}
	if ch.MaxAttempts <= 0 {
		return fmt.Errorf("%s.max_attempts must be positive", name)
	}
	return nil
}

func validatePolicy(name string, p LockoutPolicy) error {
	if p.MaxFailures <= 0 || p.Window <= 0 || p.LockDuration <= 0 {
		return fmt.Errorf("%s: max_failures, window and lock_duration must be positive", name)
	}
	return nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxPasswordBytes,
	}
}

func (c *Config) lockoutPolicy(class string) LockoutPolicy {
	if p, ok := c.Lockout.Classes[class]; ok {
		return p
	}
	return c.Lockout.Default
}

func cloneConfig(in Config) Config {
	out := in
	if in.Lockout.Classes != nil {
		out.Lockout.Classes = make(map[string]LockoutPolicy, len(in.Lockout.Classes))
		for k, v := range in.Lockout.Classes {
			out.Lockout.Classes[k] = v
		}
	}
	out.Session.PrivateKey = append([]byte(nil), in.Session.PrivateKey...)
	out.Session.PublicKey = append([]byte(nil), in.Session.PublicKey...)
	return out
}
