package flows

import (
	"context"
	"strings"
)

// Account is a Recipient plus its stored password hash and step-up choice.
type Account struct {
	Recipient
	PasswordHash string
	TwoFactor    string
}

// AccountLookup resolves a subject to its account.
type AccountLookup func(ctx context.Context, subject string) (Account, error)

// NormalizeEmail lowercases and trims an email identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func plausibleEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && len(email) <= 320
}
