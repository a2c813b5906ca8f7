package session

import "time"

// Claims are the identity facts a session is issued for.
type Claims struct {
	Subject string
	Email   string
}

// Payload is an issued session. ExpiresAt is always after IssuedAt.
type Payload struct {
	ID        string
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining is the time left until expiry at now, never negative.
func (p Payload) Remaining(now time.Time) time.Duration {
	if d := p.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
