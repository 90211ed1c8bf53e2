package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strogmv/fanout/internal/pkg/logger"
	"github.com/strogmv/fanout/internal/port"
)

// EmailSink mails every alert to a fixed list of administrators.
type EmailSink struct {
	Mailer     port.Mailer
	Recipients []string
}

func (s *EmailSink) Send(ctx context.Context, msg port.NotificationMessage) error {
	if len(s.Recipients) == 0 {
		return fmt.Errorf("no alert recipients configured")
	}
	return s.Mailer.Send(ctx, port.EmailMessage{
		To:      s.Recipients,
		Subject: msg.Subject,
		Text:    msg.Body,
	})
}

// LogSink writes alerts to the structured log.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, msg port.NotificationMessage) error {
	level := slog.LevelWarn
	if msg.Severity == "critical" {
		level = slog.LevelError
	}
	attrs := []any{
		"alert_event", msg.Event,
		"severity", msg.Severity,
		"entity_id", msg.EntityID,
	}
	for k, v := range msg.Metadata {
		attrs = append(attrs, slog.Any("meta."+k, v))
	}
	logger.From(ctx).Log(ctx, level, msg.Subject, attrs...)
	return nil
}
