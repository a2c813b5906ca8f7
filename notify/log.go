package notify

import (
	"context"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Log records that a message would have been sent. Bodies are never logged,
// so codes routed through Log cannot be recovered from the logs.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, msg goCred.Message) (goCred.DeliveryResult, error) {
	id := uuid.NewString()
	l.logger.Info("notification suppressed",
		zap.String("to", MaskAddress(msg.To)),
		zap.String("subject", msg.Subject),
		zap.String("message_id", id),
		zap.Bool("has_html", msg.HTML != ""),
	)
	return goCred.DeliveryResult{Provider: "log", MessageID: id, SentAt: time.Now()}, nil
}

// Fallback sends through Primary and, if that fails, through Secondary.
type Fallback struct {
	Primary   goCred.Notifier
	Secondary goCred.Notifier
	Logger    *zap.Logger
}

func (f Fallback) Send(ctx context.Context, msg goCred.Message) (goCred.DeliveryResult, error) {
	res, err := f.Primary.Send(ctx, msg)
	if err == nil || f.Secondary == nil {
		return res, err
	}
	if f.Logger != nil {
		f.Logger.Warn("primary notifier failed, using fallback", zap.Error(err))
	}
	return f.Secondary.Send(ctx, msg)
}
