package goCred

import (
	"fmt"
	"strings"
)

// plainRenderer is used when no Renderer is configured. Production
// deployments should install notify.Templates.
type plainRenderer struct{}

func (plainRenderer) Render(kind MessageKind, data MessageData) (Message, error) {
	var subject string
	var b strings.Builder

	if data.Name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", data.Name)
	}
	switch kind {
	case MessageOTP:
		subject = "Your verification code"
		fmt.Fprintf(&b, "Your verification code is %s. It expires in %d minutes.\n", data.Code, data.ExpiresInMinutes)
	case MessageResetLink:
		subject = "Reset your password"
		fmt.Fprintf(&b, "Use this link to reset your password: %s\nThe link expires in %d minutes.\n", data.Link, data.ExpiresInMinutes)
	case MessageWelcome:
		subject = "Welcome"
		b.WriteString("Your account is ready.\n")
	case MessageSecurityAlert:
		subject = "Security alert"
		fmt.Fprintf(&b, "A security event occurred on your account: %s at %s.\n", data.Event, data.OccurredAt.UTC().Format("2006-01-02 15:04 MST"))
		b.WriteString("If this was not you, reset your password now.\n")
	default:
		return Message{}, fmt.Errorf("unknown message kind %q", kind)
	}

	return Message{To: data.To, Subject: subject, Text: b.String()}, nil
}
