package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/domain"
	"github.com/strogmv/fanout/internal/event"
	"github.com/strogmv/fanout/internal/pkg/circuitbreaker"
	"github.com/strogmv/fanout/internal/port"
)

var (
	t0        = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	therapist = domain.User{ID: 10, Name: "Dr. Reyes", Roles: []string{domain.RoleTherapist}}
	child     = domain.UserRef{ID: 20, Name: "Milo"}
	guardian  = domain.UserRef{ID: 30, Name: "Ana"}
)

func directMessage() domain.Message {
	return domain.Message{
		ID:          1,
		Content:     "hello",
		MessageType: "text",
		SenderID:    therapist.ID,
		RecipientID: child.ID,
		CreatedAt:   t0.Add(-time.Minute),
		Sender:      &therapist,
		Recipient:   &child,
	}
}

func activeAlert(notified ...int64) domain.PanicAlert {
	ns := make([]domain.PanicNotification, 0, len(notified))
	for i, id := range notified {
		ns = append(ns, domain.PanicNotification{ID: int64(i + 1), NotifiedUserID: id})
	}
	return domain.PanicAlert{
		ID:            77,
		ChildID:       child.ID,
		TriggeredAt:   t0.Add(-time.Second),
		Status:        domain.AlertActive,
		Child:         &child,
		Notifications: ns,
	}
}

func newTestDispatcher(tr port.Transport, opts ...Option) *Dispatcher {
	base := []Option{WithClock(fixedClock(t0, time.Second)), WithIDGenerator(sequentialIDs())}
	return NewDispatcher(tr, channel.DefaultScheme(), append(base, opts...)...)
}

func TestDispatchPublishesOnceToAllChannels(t *testing.T) {
	tr := &TransportMock{}
	d := newTestDispatcher(tr)

	receipt, err := d.Dispatch(context.Background(), event.DirectMessageSent{Message: directMessage()})
	require.NoError(t, err)

	published := tr.Published()
	require.Len(t, published, 1)
	env := published[0]
	assert.Equal(t, "message.sent", env.Event)
	assert.Equal(t, []string{"user.10", "user.20"}, env.Channels)
	assert.Equal(t, t0, env.SentAt)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	msg := payload["message"].(map[string]any)
	assert.Equal(t, "hello", msg["content"])

	assert.True(t, receipt.Delivered)
	assert.Equal(t, env.ID, receipt.ID)
	assert.Equal(t, env.Channels, receipt.Channels)
	assert.Empty(t, receipt.Error)
}

func TestDispatchReturnsResolutionErrorWithoutPublishing(t *testing.T) {
	tr := &TransportMock{}
	d := newTestDispatcher(tr)
	before := testutil.ToFloat64(dispatchTotal.WithLabelValues(event.NameMessageSent, outcomeUnresolved))

	msg := directMessage()
	msg.Recipient = nil
	_, err := d.Dispatch(context.Background(), event.DirectMessageSent{Message: msg})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnresolved)
	var rerr *domain.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "recipient", rerr.Relation)
	assert.Empty(t, tr.Published())
	assert.Equal(t, before+1, testutil.ToFloat64(dispatchTotal.WithLabelValues(event.NameMessageSent, outcomeUnresolved)))
}

func TestDispatchNonCriticalFailureIsSwallowed(t *testing.T) {
	tr := &TransportMock{PublishFunc: func(context.Context, port.Envelope) error {
		return errors.New("connection refused")
	}}
	dl := &DeadLetterRepositoryMock{}
	alerts := &NotificationDispatcherMock{}
	d := newTestDispatcher(tr, WithDeadLetters(dl), WithAlerts(alerts))

	receipt, err := d.Dispatch(context.Background(), event.DirectMessageSent{Message: directMessage()})
	require.NoError(t, err)
	assert.False(t, receipt.Delivered)
	assert.Equal(t, "connection refused", receipt.Error)
	assert.False(t, receipt.DeadLettered)
	assert.Empty(t, dl.saved)
	assert.Empty(t, alerts.sent)
}

func TestDispatchCriticalFailureEscalates(t *testing.T) {
	tr := &TransportMock{PublishFunc: func(context.Context, port.Envelope) error {
		return errors.New("broker timeout")
	}}
	dl := &DeadLetterRepositoryMock{}
	alerts := &NotificationDispatcherMock{}
	d := newTestDispatcher(tr, WithDeadLetters(dl), WithAlerts(alerts))
	before := testutil.ToFloat64(criticalFailures.WithLabelValues(event.NamePanicAlertTriggered))

	receipt, err := d.Dispatch(context.Background(), event.PanicAlertTriggered{Alert: activeAlert(30, 40)})
	require.NoError(t, err)
	assert.False(t, receipt.Delivered)
	assert.True(t, receipt.DeadLettered)

	require.Len(t, dl.saved, 1)
	saved := dl.saved[0]
	assert.Equal(t, receipt.ID, saved.ID)
	assert.Equal(t, "broker timeout", saved.Error)
	var env port.Envelope
	require.NoError(t, json.Unmarshal(saved.Envelope, &env))
	assert.Equal(t, []string{"emergency-alerts", "user.30", "user.40"}, env.Channels)

	require.Len(t, alerts.sent, 1)
	alert := alerts.sent[0]
	assert.Equal(t, "critical", alert.Severity)
	assert.Equal(t, "broadcast.failed", alert.Event)
	assert.Contains(t, alert.Subject, "panic-alert.triggered")
	assert.Contains(t, alert.Body, "Dead letter stored: true")
	assert.Contains(t, alert.Body, "emergency-alerts, user.30, user.40")

	assert.Equal(t, before+1, testutil.ToFloat64(criticalFailures.WithLabelValues(event.NamePanicAlertTriggered)))
}

func TestDispatchCriticalFailureStillAlertsWhenDeadLetterFails(t *testing.T) {
	tr := &TransportMock{PublishFunc: func(context.Context, port.Envelope) error { return errors.New("down") }}
	dl := &DeadLetterRepositoryMock{SaveFunc: func(context.Context, port.DeadLetter) error { return errors.New("disk full") }}
	alerts := &NotificationDispatcherMock{DispatchFunc: func(context.Context, port.NotificationMessage) error {
		return errors.New("smtp down")
	}}
	d := newTestDispatcher(tr, WithDeadLetters(dl), WithAlerts(alerts))

	receipt, err := d.Dispatch(context.Background(), event.PanicAlertTriggered{Alert: activeAlert(30)})
	require.NoError(t, err, "escalation failures never fail the dispatch")
	assert.False(t, receipt.DeadLettered)
	require.Len(t, alerts.sent, 1)
	assert.Contains(t, alerts.sent[0].Body, "Dead letter stored: false")
}

func TestDispatchPublishSurvivesCallerCancellation(t *testing.T) {
	var publishCtx context.Context
	tr := &TransportMock{PublishFunc: func(ctx context.Context, _ port.Envelope) error {
		publishCtx = ctx
		return ctx.Err()
	}}
	d := newTestDispatcher(tr, WithPublishTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	receipt, err := d.Dispatch(ctx, event.DirectMessageSent{Message: directMessage()})
	require.NoError(t, err)
	assert.True(t, receipt.Delivered)
	_, hasDeadline := publishCtx.Deadline()
	assert.True(t, hasDeadline)
}

func TestDispatchBreakerFailsFast(t *testing.T) {
	calls := 0
	tr := &TransportMock{PublishFunc: func(context.Context, port.Envelope) error {
		calls++
		return errors.New("down")
	}}
	d := newTestDispatcher(tr, WithBreaker(circuitbreaker.NewBreaker(2, time.Hour, 1)))

	for i := 0; i < 2; i++ {
		_, err := d.Dispatch(context.Background(), event.DirectMessageSent{Message: directMessage()})
		require.NoError(t, err)
	}
	receipt, err := d.Dispatch(context.Background(), event.DirectMessageSent{Message: directMessage()})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.False(t, receipt.Delivered)
	assert.Contains(t, receipt.Error, ErrTransportUnavailable.Error())
}

func TestDispatchCountsOfflineCriticalRecipients(t *testing.T) {
	tr := &TransportMock{}
	var asked []int64
	presence := &PresenceReaderMock{OnlineFunc: func(_ context.Context, ids []int64) (map[int64]bool, error) {
		asked = ids
		return map[int64]bool{30: true}, nil
	}}
	d := newTestDispatcher(tr, WithPresence(presence))
	before := testutil.ToFloat64(offlineRecipients.WithLabelValues(event.NamePanicAlertTriggered))

	_, err := d.Dispatch(context.Background(), event.PanicAlertTriggered{Alert: activeAlert(30, 40, 50)})
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 40, 50}, asked)
	assert.Equal(t, before+2, testutil.ToFloat64(offlineRecipients.WithLabelValues(event.NamePanicAlertTriggered)))
}

func TestDispatchSkipsPresenceForNonCriticalEvents(t *testing.T) {
	presence := &PresenceReaderMock{OnlineFunc: func(context.Context, []int64) (map[int64]bool, error) {
		t.Fatal("presence must not be queried")
		return nil, nil
	}}
	d := newTestDispatcher(&TransportMock{}, WithPresence(presence))
	_, err := d.Dispatch(context.Background(), event.DirectMessageSent{Message: directMessage()})
	require.NoError(t, err)
}

func TestDispatchUsesConfiguredOperationalChannels(t *testing.T) {
	scheme, err := channel.NewScheme("ops-watch", "sos")
	require.NoError(t, err)
	tr := &TransportMock{}
	d := NewDispatcher(tr, scheme)

	_, err = d.Dispatch(context.Background(), event.PanicAlertTriggered{Alert: activeAlert(30)})
	require.NoError(t, err)
	assert.Equal(t, []string{"sos", "user.30"}, tr.Published()[0].Channels)
}

func TestMonotonicClockNeverGoesBack(t *testing.T) {
	times := []time.Time{t0, t0.Add(-time.Hour), t0.Add(time.Second)}
	i := 0
	c := newMonotonicClock(func() time.Time {
		tm := times[i]
		i++
		return tm
	})
	assert.Equal(t, t0, c.Now())
	assert.Equal(t, t0, c.Now())
	assert.Equal(t, t0.Add(time.Second), c.Now())
}
