package goCred

import (
	"context"
	"io"

	"github.com/MrEthical07/goCred/internal/audit"
	"go.uber.org/zap"
)

type (
	// AuditEvent is one security-relevant outcome. It never carries codes,
	// tokens or passwords.
	AuditEvent = audit.Event
	// AuditSink receives events from the async dispatcher.
	AuditSink = audit.Sink
	// AuditSinkFunc adapts a function to AuditSink.
	AuditSinkFunc = audit.SinkFunc
	// NoOpAuditSink discards events.
	NoOpAuditSink = audit.NoOpSink
	// ChannelAuditSink forwards events to a channel; useful in tests.
	ChannelAuditSink = audit.ChannelSink
	// JSONAuditSink writes one JSON object per line.
	JSONAuditSink = audit.JSONWriterSink
	// ZapAuditSink logs events through zap.
	ZapAuditSink = audit.ZapSink
)

func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONAuditSink(w io.Writer) *JSONAuditSink {
	return audit.NewJSONWriterSink(w)
}

func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	return audit.NewZapSink(logger)
}

func (e *Engine) emitAudit(ctx context.Context, ev audit.Event) {
	if e == nil || e.audit == nil {
		return
	}
	ev.Timestamp = e.now()
	if ev.IP == "" {
		ev.IP = ClientIP(ctx)
	}
	e.audit.Emit(ctx, ev)
}
