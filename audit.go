package authcore

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"go.uber.org/zap"
)

// Audit event types.
const (
	AuditLogin          = "auth.login"
	AuditLoginThrottled = "auth.login_throttled"
	AuditLockoutSignal  = "auth.lockout_signal"
	AuditRefresh        = "auth.refresh"
	AuditRefreshReplay  = "auth.refresh_replay"
	AuditSessionEvicted = "auth.session_evicted"
	AuditLogout         = "auth.logout"
	AuditLogoutAll      = "auth.logout_all"
	AuditAccessDenied   = "auth.access_denied"
	AuditThrottleReset  = "auth.throttle_reset"
)

// AuditEvent is a security event handed to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events on the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpAuditSink discards events.
type NoOpAuditSink = audit.NoOpSink

// NewChannelAuditSink returns a sink that buffers events in a channel.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink writes one JSON object per event to w.
func NewJSONAuditSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// ZapAuditSink routes audit events into log.
func ZapAuditSink(log *zap.Logger) AuditSink {
	return audit.NewZapSink(log)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		SubjectID: subjectID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = KindOf(err).String()
	}

	e.audit.Emit(ctx, event)
}

func durationMeta(d time.Duration) string {
	return d.Round(time.Second).String()
}
