package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPConfig selects the broker and destination.
type AMQPConfig struct {
	URL         string        `yaml:"-" env:"URL"`
	Exchange    string        `yaml:"exchange" env:"EXCHANGE"`
	RoutingKey  string        `yaml:"routing_key" env:"ROUTING_KEY"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// Envelope is the JSON body published for each message. A mail worker on
// the other side owns transport.
type Envelope struct {
	MessageID string    `json:"message_id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html,omitempty"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// amqpChannel is the subset of *amqp.Channel used here.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes messages to a durable topic exchange.
type AMQP struct {
	cfg    AMQPConfig
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	declared bool
	reopen   func() (amqpChannel, error)
}

// DialAMQP connects to the broker. logger may be nil.
func DialAMQP(cfg AMQPConfig, logger *zap.Logger) (*AMQP, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	clean, err := sanitizeAMQPURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	p := newAMQP(cfg, ch, logger)
	p.conn = conn
	p.reopen = func() (amqpChannel, error) { return conn.Channel() }
	return p, nil
}

func newAMQP(cfg AMQPConfig, ch amqpChannel, logger *zap.Logger) *AMQP {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "gocred.notification"
	}
	return &AMQP{cfg: cfg, logger: logger, now: time.Now, channel: ch}
}

func (c AMQPConfig) validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("amqp url is required")
	}
	if strings.TrimSpace(c.Exchange) == "" {
		return errors.New("amqp exchange is required")
	}
	return nil
}

// Send publishes msg. A failed publish reopens the channel once and retries.
func (p *AMQP) Send(ctx context.Context, msg goCred.Message) (goCred.DeliveryResult, error) {
	if strings.TrimSpace(msg.To) == "" {
		return goCred.DeliveryResult{}, errors.New("message has no recipient")
	}

	env := Envelope{
		MessageID: uuid.NewString(),
		To:        msg.To,
		Subject:   msg.Subject,
		HTML:      msg.HTML,
		Text:      msg.Text,
		CreatedAt: p.now().UTC(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return goCred.DeliveryResult{}, err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.MessageID,
		Timestamp:    env.CreatedAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, pub)
	if err != nil && p.reopen != nil {
		p.logger.Warn("amqp publish failed, reopening channel", zap.String("exchange", p.cfg.Exchange), zap.Error(err))
		if ch, cerr := p.reopen(); cerr == nil {
			_ = p.channel.Close()
			p.channel = ch
			p.declared = false
			err = p.publishLocked(ctx, pub)
		}
	}
	if err != nil {
		return goCred.DeliveryResult{}, fmt.Errorf("amqp publish: %w", err)
	}
	return goCred.DeliveryResult{Provider: "amqp", MessageID: env.MessageID, SentAt: env.CreatedAt}, nil
}

func (p *AMQP) publishLocked(ctx context.Context, pub amqp.Publishing) error {
	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		p.declared = true
	}
	return p.channel.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, pub)
}

// Close releases the channel and connection.
func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
