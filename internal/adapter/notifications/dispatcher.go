package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/strogmv/fanout/internal/port"
)

const (
	ChannelEmail = "email"
	ChannelLog   = "log"
)

// Dispatcher routes operational alerts to configured channel sinks.
type Dispatcher struct {
	EmailSink port.NotificationSink
	LogSink   port.NotificationSink
}

type dispatchPolicy struct {
	Event    string
	Severity string
	Channels []string
}

// Critical failures page by e-mail and always leave a log line, even when
// e-mail is down.
var dispatchPolicies = []dispatchPolicy{
	{Event: "broadcast.failed", Severity: "critical", Channels: []string{ChannelLog, ChannelEmail}},
}

func NewDispatcher(email, log port.NotificationSink) *Dispatcher {
	return &Dispatcher{EmailSink: email, LogSink: log}
}

// Dispatch delivers msg to its channels, or to the policy channels when omitted.
// Every channel is attempted; the errors are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, msg port.NotificationMessage) error {
	msg = applyDispatchPolicy(msg)
	channels := msg.Channels
	if len(channels) == 0 {
		channels = []string{ChannelLog}
	}
	var errs []error
	for _, channel := range channels {
		channel = strings.TrimSpace(channel)
		var sink port.NotificationSink
		switch channel {
		case ChannelEmail:
			sink = d.EmailSink
		case ChannelLog:
			sink = d.LogSink
		default:
			errs = append(errs, fmt.Errorf("notification channel %q is not supported", channel))
			continue
		}
		if sink == nil {
			// e-mail is optional; an unconfigured sink is skipped unless it is the only channel
			if len(channels) == 1 {
				errs = append(errs, fmt.Errorf("notification sink %q is not configured", channel))
			}
			continue
		}
		if err := sink.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("send via %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

func applyDispatchPolicy(msg port.NotificationMessage) port.NotificationMessage {
	for _, rule := range dispatchPolicies {
		if rule.Event != "" && !strings.EqualFold(rule.Event, strings.TrimSpace(msg.Event)) {
			continue
		}
		if rule.Severity != "" && msg.Severity != "" && !strings.EqualFold(rule.Severity, msg.Severity) {
			continue
		}
		if msg.Severity == "" {
			msg.Severity = rule.Severity
		}
		if len(msg.Channels) == 0 {
			msg.Channels = append([]string(nil), rule.Channels...)
		}
		return msg
	}
	return msg
}
