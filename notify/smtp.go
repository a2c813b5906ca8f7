package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	mail "github.com/go-mail/mail"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TLS modes accepted by SMTPConfig.TLSMode.
const (
	TLSModeAuto     = "auto"
	TLSModeStartTLS = "starttls"
	TLSModeSSL      = "ssl"
	TLSModeNone     = "none"
)

// SMTPConfig holds relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	From     string `yaml:"from" env:"FROM"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"-" env:"PASSWORD"`
	// TLSMode is one of auto, starttls, ssl or none.
	TLSMode            string        `yaml:"tls_mode" env:"TLS_MODE"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
	Timeout            time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SMTP delivers messages over an SMTP relay. A new connection is dialed per
// message.
type SMTP struct {
	cfg    SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSMTP validates cfg. logger may be nil.
func NewSMTP(cfg SMTPConfig, logger *zap.Logger) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 {
		return nil, errors.New("smtp host and port are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	switch cfg.TLSMode {
	case "":
		cfg.TLSMode = TLSModeAuto
	case TLSModeAuto, TLSModeStartTLS, TLSModeSSL, TLSModeNone:
	default:
		return nil, fmt.Errorf("unknown smtp tls mode %q", cfg.TLSMode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTP{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Send dials the relay and delivers msg. go-mail does not take a context, so
// ctx is only checked before dialing; Timeout bounds the exchange.
func (s *SMTP) Send(ctx context.Context, msg goCred.Message) (goCred.DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return goCred.DeliveryResult{}, err
	}
	if strings.TrimSpace(msg.To) == "" {
		return goCred.DeliveryResult{}, errors.New("message has no recipient")
	}

	id := s.messageID()
	m := s.buildMessage(msg, id)
	d := s.dialer()

	if err := d.DialAndSend(m); err != nil {
		s.logger.Warn("smtp send failed", zap.String("to", MaskAddress(msg.To)), zap.Error(err))
		return goCred.DeliveryResult{}, fmt.Errorf("smtp send: %w", err)
	}
	s.logger.Debug("smtp send ok", zap.String("to", MaskAddress(msg.To)), zap.String("message_id", id))
	return goCred.DeliveryResult{Provider: "smtp", MessageID: id, SentAt: s.now()}, nil
}

func (s *SMTP) messageID() string {
	domain := s.cfg.Host
	if at := strings.LastIndexByte(s.cfg.From, '@'); at >= 0 {
		domain = strings.Trim(s.cfg.From[at+1:], "> ")
	}
	return uuid.NewString() + "@" + domain
}

// buildMessage prefers multipart/alternative with the text part first.
func (s *SMTP) buildMessage(msg goCred.Message, id string) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", "<"+id+">")
	m.SetDateHeader("Date", s.now())

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

func (s *SMTP) dialer() *mail.Dialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.Timeout = s.cfg.Timeout
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, // dev relays only
	}

	switch s.cfg.TLSMode {
	case TLSModeSSL:
		d.SSL = true
	case TLSModeStartTLS:
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case TLSModeNone:
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	return d
}

// MaskAddress keeps the first rune of the local part and the domain, so logs
// can be correlated without recording full addresses.
func MaskAddress(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	local := []rune(addr[:at])
	return string(local[0]) + "***" + addr[at:]
}
