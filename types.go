package goCred

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/session"
)

// Channel names the delivery and verification path of a challenge.
type Channel string

const (
	// ChannelEmailOTP is a numeric code delivered by email.
	ChannelEmailOTP Channel = "email-otp"
	// ChannelPasswordReset is an opaque token delivered as a reset link.
	ChannelPasswordReset Channel = "password-reset"
	// ChannelTOTP checks the candidate against the subject's authenticator
	// secret. No code is minted or delivered.
	ChannelTOTP Channel = "totp"
)

// ParseChannel accepts the wire names above, case-insensitively.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelEmailOTP, ChannelPasswordReset, ChannelTOTP:
		return c, nil
	default:
		return "", ErrUnknownChannel
	}
}

func (c Channel) String() string { return string(c) }

// Lockout action classes. Each (subject, class) pair keeps its own ledger.
const (
	ClassLogin           = "login"
	ClassOTPVerify       = "otp-verify"
	ClassResetVerify     = "reset-verify"
	ClassTOTPVerify      = "totp-verify"
	ClassResend          = "resend"
	ClassPasswordConfirm = "password-confirm"
)

// Credential is the directory's view of a subject's authentication secret.
// PasswordHash is a PHC string; the plaintext never reaches this type.
type Credential struct {
	Subject      string
	Email        string
	Name         string
	PasswordHash string
	Algorithm    string
	UpdatedAt    time.Time

	// TOTPSecret is the raw authenticator key, empty when not enrolled.
	TOTPSecret []byte
	// TwoFactor selects the login step-up channel; empty disables it.
	TwoFactor Channel
}

// Directory is the account store the engine reads credentials from and
// writes new hashes to.
//
// FindByEmail and FindBySubject return ErrSubjectNotFound for unknown keys.
type Directory interface {
	FindBySubject(ctx context.Context, subject string) (Credential, error)
	FindByEmail(ctx context.Context, email string) (string, error)
	UpdateCredential(ctx context.Context, subject, passwordHash string) error
}

// Message is one rendered email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// DeliveryResult is what a Notifier reports for an accepted message.
type DeliveryResult struct {
	Provider  string
	MessageID string
	SentAt    time.Time
}

// Notifier sends rendered messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) (DeliveryResult, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) (DeliveryResult, error)

func (f NotifierFunc) Send(ctx context.Context, msg Message) (DeliveryResult, error) {
	return f(ctx, msg)
}

// MessageKind selects a template.
type MessageKind string

const (
	MessageOTP           MessageKind = "otp"
	MessageResetLink     MessageKind = "reset-link"
	MessageWelcome       MessageKind = "welcome"
	MessageSecurityAlert MessageKind = "security-alert"
)

// MessageData holds the dynamic values a template may use.
type MessageData struct {
	To               string
	Name             string
	Code             string
	Link             string
	ExpiresInMinutes int
	Event            string
	OccurredAt       time.Time
}

// Renderer turns MessageData into a Message.
type Renderer interface {
	Render(kind MessageKind, data MessageData) (Message, error)
}

// Delivery reports what happened to the notification of an issued
// challenge. A failed delivery leaves the challenge issued.
type Delivery struct {
	Attempted bool
	Queued    bool
	Result    DeliveryResult
	Err       error
}

// ChallengeHandle describes an issued challenge. It never carries the code.
type ChallengeHandle struct {
	Subject   string
	Channel   Channel
	IssuedAt  time.Time
	ExpiresAt time.Time
	Delivery  Delivery
}

// VerifyResult is the tagged outcome of a verification. Err is returned
// alongside it and is nil iff Success.
type VerifyResult struct {
	Success           bool
	Kind              ErrorKind
	RetryAfter        time.Duration
	AttemptsRemaining int
}

// ChallengeStatus is the read-only view used to drive resend countdowns.
type ChallengeStatus struct {
	Subject           string
	Channel           Channel
	State             string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
	ResendAvailable   bool
	ResendAvailableAt time.Time
}

// SessionGrant is an issued session and its signed cookie value.
type SessionGrant struct {
	Payload session.Payload
	Token   string
}

// LoginResult is either a session or a pending second factor.
type LoginResult struct {
	Subject     string
	MFARequired bool
	Channel     Channel
	Challenge   *ChallengeHandle
	Session     *SessionGrant
}

type (
	// Outcome is what the caller observed for a guarded attempt.
	Outcome = limiters.Outcome
	// LockoutPolicy is the threshold for one action class.
	LockoutPolicy = limiters.LockoutPolicy
	// LockoutState is the ledger for one (subject, action class).
	LockoutState = limiters.LockoutState
)

const (
	OutcomeNone    = limiters.OutcomeNone
	OutcomeSuccess = limiters.OutcomeSuccess
	OutcomeFailure = limiters.OutcomeFailure
)

// GuardDecision is the lockout guard's answer.
type GuardDecision struct {
	Allowed     bool
	Failures    int
	LockedUntil time.Time
	RetryAfter  time.Duration
}
