package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/event"
	"github.com/strogmv/fanout/internal/pkg/circuitbreaker"
	"github.com/strogmv/fanout/internal/pkg/logger"
	"github.com/strogmv/fanout/internal/pkg/templaterender"
	"github.com/strogmv/fanout/internal/port"
)

// ErrTransportUnavailable is reported while the transport breaker is open.
var ErrTransportUnavailable = errors.New("broadcast transport unavailable")

const defaultPublishTimeout = 2 * time.Second

const criticalAlertBody = `Live delivery of {{.Event}} failed.

Envelope: {{.ID}}
Channels: {{.Channels}}
Error:    {{.Error}}
Dead letter stored: {{.Stored}}

Responders subscribed to these channels did not receive the alert in real time.
Check the transport and replay dead letters once it is healthy.`

// Dispatcher runs the resolve, project and publish pipeline for one event at
// a time. It holds no per-event state; concurrent calls are independent.
type Dispatcher struct {
	transport   port.Transport
	scheme      channel.Scheme
	breaker     *circuitbreaker.Breaker
	timeout     time.Duration
	alerts      port.NotificationDispatcher
	deadLetters port.DeadLetterRepository
	presence    port.PresenceReader
	clock       func() time.Time
	newID       func() string
	tracer      trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(d *Dispatcher) { d.breaker = b }
}

func WithPublishTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithAlerts routes critical delivery failures to administrators.
func WithAlerts(a port.NotificationDispatcher) Option {
	return func(d *Dispatcher) { d.alerts = a }
}

// WithDeadLetters persists critical envelopes whose publish failed.
func WithDeadLetters(r port.DeadLetterRepository) Option {
	return func(d *Dispatcher) { d.deadLetters = r }
}

// WithPresence lets the dispatcher report offline recipients of critical events.
func WithPresence(p port.PresenceReader) Option {
	return func(d *Dispatcher) { d.presence = p }
}

// WithClock replaces the wall clock. The dispatcher still guarantees non-decreasing timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.clock = newMonotonicClock(now).Now }
}

func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

func NewDispatcher(transport port.Transport, scheme channel.Scheme, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		scheme:    scheme,
		timeout:   defaultPublishTimeout,
		clock:     newMonotonicClock(time.Now).Now,
		newID:     func() string { return uuid.NewString() },
		tracer:    otel.Tracer("github.com/strogmv/fanout/internal/service"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Now is the dispatcher clock, shared with the services that stamp snapshots.
func (d *Dispatcher) Now() time.Time { return d.clock() }

// Dispatch resolves, projects and publishes ev. Resolution and projection
// errors are returned; transport errors are logged, escalated for critical
// events and reported in the receipt.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) (port.Receipt, error) {
	ctx, span := d.tracer.Start(ctx, "fanout.dispatch", trace.WithAttributes(
		attribute.String("fanout.event", ev.Name()),
		attribute.Bool("fanout.critical", ev.Critical()),
	))
	defer span.End()
	log := logger.From(ctx).With("event", ev.Name())

	chans, err := ev.Channels(d.scheme)
	if err != nil {
		dispatchTotal.WithLabelValues(ev.Name(), outcomeUnresolved).Inc()
		span.SetStatus(codes.Error, "resolve recipients")
		span.RecordError(err)
		log.Error("recipient resolution failed", "error", err)
		return port.Receipt{}, fmt.Errorf("resolve recipients: %w", err)
	}

	now := d.clock()
	payload, err := ev.Payload(now)
	if err != nil {
		dispatchTotal.WithLabelValues(ev.Name(), outcomeUnresolved).Inc()
		span.SetStatus(codes.Error, "project payload")
		span.RecordError(err)
		log.Error("payload projection failed", "error", err)
		return port.Receipt{}, fmt.Errorf("project payload: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		dispatchTotal.WithLabelValues(ev.Name(), outcomeInvalid).Inc()
		span.SetStatus(codes.Error, "encode payload")
		return port.Receipt{}, fmt.Errorf("encode payload: %w", err)
	}

	env := port.Envelope{
		ID:       d.newID(),
		Event:    ev.Name(),
		Channels: channel.Strings(chans),
		Data:     data,
		SentAt:   now,
	}
	receipt := port.Receipt{ID: env.ID, Event: env.Event, Channels: env.Channels}
	span.SetAttributes(
		attribute.String("fanout.envelope_id", env.ID),
		attribute.StringSlice("fanout.channels", env.Channels),
	)
	channelsPerEvent.WithLabelValues(ev.Name()).Observe(float64(len(chans)))

	if ev.Critical() {
		d.observeOffline(ctx, ev.Name(), chans)
	}

	err = d.publish(ctx, env)
	if err == nil {
		receipt.Delivered = true
		dispatchTotal.WithLabelValues(ev.Name(), outcomeDelivered).Inc()
		log.Debug("broadcast published", "envelope_id", env.ID, "channels", env.Channels)
		return receipt, nil
	}

	receipt.Error = err.Error()
	dispatchTotal.WithLabelValues(ev.Name(), outcomeFailed).Inc()
	span.SetStatus(codes.Error, "publish")
	span.RecordError(err)
	if !ev.Critical() {
		log.Warn("live push failed; clients will catch up on reload",
			"envelope_id", env.ID, "channels", env.Channels, "error", err)
		return receipt, nil
	}
	d.escalate(ctx, env, err, &receipt)
	return receipt, nil
}

func (d *Dispatcher) publish(ctx context.Context, env port.Envelope) error {
	// The caller going away must not cancel an in-flight publish; the timeout still bounds it.
	ctx = context.WithoutCancel(ctx)
	send := func() error {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		start := time.Now()
		err := d.transport.Publish(pctx, env)
		publishDuration.WithLabelValues(env.Event).Observe(time.Since(start).Seconds())
		return err
	}
	if d.breaker == nil {
		return send()
	}
	err := d.breaker.Execute(send)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return err
}

// escalate handles a failed critical publish: highest-severity log, dead
// letter and an operational alert. None of these may fail the dispatch.
func (d *Dispatcher) escalate(ctx context.Context, env port.Envelope, cause error, receipt *port.Receipt) {
	ctx = context.WithoutCancel(ctx)
	log := logger.From(ctx).With("event", env.Event, "envelope_id", env.ID, "severity", "critical")
	criticalFailures.WithLabelValues(env.Event).Inc()
	log.Error("critical broadcast was not delivered", "channels", env.Channels, "error", cause)

	if d.deadLetters != nil {
		raw, err := json.Marshal(env)
		if err == nil {
			err = d.deadLetters.Save(ctx, port.DeadLetter{
				ID:        env.ID,
				Event:     env.Event,
				Envelope:  raw,
				Error:     cause.Error(),
				CreatedAt: env.SentAt,
			})
		}
		if err != nil {
			log.Error("dead letter could not be stored", "error", err)
		} else {
			receipt.DeadLettered = true
		}
	}

	if d.alerts == nil {
		log.Error("no operational alert sink configured; administrators were not paged")
		return
	}
	body, err := templaterender.RenderString(criticalAlertBody, map[string]any{
		"Event":    env.Event,
		"ID":       env.ID,
		"Channels": strings.Join(env.Channels, ", "),
		"Error":    cause.Error(),
		"Stored":   receipt.DeadLettered,
	})
	if err != nil {
		body = fmt.Sprintf("Live delivery of %s (%s) failed: %v", env.Event, env.ID, cause)
	}
	if err := d.alerts.Dispatch(ctx, port.NotificationMessage{
		Event:    "broadcast.failed",
		Severity: "critical",
		Subject:  fmt.Sprintf("[CRITICAL] %s was not delivered", env.Event),
		Body:     body,
		EntityID: env.ID,
		Metadata: map[string]any{
			"event":    env.Event,
			"channels": env.Channels,
			"error":    cause.Error(),
		},
	}); err != nil {
		log.Error("operational alert failed", "error", err)
	}
}

func (d *Dispatcher) observeOffline(ctx context.Context, name string, chans []channel.Name) {
	if d.presence == nil {
		return
	}
	var users []int64
	for _, c := range chans {
		if kind, id, err := d.scheme.Parse(c); err == nil && kind == channel.KindUser {
			users = append(users, id)
		}
	}
	if len(users) == 0 {
		return
	}
	online, err := d.presence.Online(ctx, users)
	if err != nil {
		logger.From(ctx).Warn("presence lookup failed", "event", name, "error", err)
		return
	}
	var offline []int64
	for _, id := range users {
		if !online[id] {
			offline = append(offline, id)
		}
	}
	if len(offline) == 0 {
		return
	}
	offlineRecipients.WithLabelValues(name).Add(float64(len(offline)))
	logger.From(ctx).Warn("critical event recipients have no live connection",
		"event", name, "offline_user_ids", offline)
}
