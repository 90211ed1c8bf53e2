package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/fanout/internal/domain"
	"github.com/strogmv/fanout/internal/pkg/auth"
	"github.com/strogmv/fanout/internal/port"
	"github.com/strogmv/fanout/internal/service"
)

type BroadcastsMock struct {
	SendMessageFunc            func(ctx context.Context, req port.SendMessageRequest) (port.Receipt, error)
	AddGroupMemberFunc         func(ctx context.Context, req port.AddGroupMemberRequest) (port.Receipt, error)
	RemoveGroupMemberFunc      func(ctx context.Context, req port.RemoveGroupMemberRequest) (port.Receipt, error)
	ChangeConnectionStatusFunc func(ctx context.Context, req port.ChangeConnectionStatusRequest) (port.Receipt, error)
	TriggerPanicAlertFunc      func(ctx context.Context, req port.TriggerPanicAlertRequest) (port.Receipt, error)
	UpdatePanicAlertFunc       func(ctx context.Context, req port.UpdatePanicAlertRequest) (port.Receipt, error)
	ReplayDeadLettersFunc      func(ctx context.Context, limit int) (port.ReplayReport, error)
}

func (m *BroadcastsMock) SendMessage(ctx context.Context, req port.SendMessageRequest) (port.Receipt, error) {
	return m.SendMessageFunc(ctx, req)
}

func (m *BroadcastsMock) AddGroupMember(ctx context.Context, req port.AddGroupMemberRequest) (port.Receipt, error) {
	return m.AddGroupMemberFunc(ctx, req)
}

func (m *BroadcastsMock) RemoveGroupMember(ctx context.Context, req port.RemoveGroupMemberRequest) (port.Receipt, error) {
	return m.RemoveGroupMemberFunc(ctx, req)
}

func (m *BroadcastsMock) ChangeConnectionStatus(ctx context.Context, req port.ChangeConnectionStatusRequest) (port.Receipt, error) {
	return m.ChangeConnectionStatusFunc(ctx, req)
}

func (m *BroadcastsMock) TriggerPanicAlert(ctx context.Context, req port.TriggerPanicAlertRequest) (port.Receipt, error) {
	return m.TriggerPanicAlertFunc(ctx, req)
}

func (m *BroadcastsMock) UpdatePanicAlert(ctx context.Context, req port.UpdatePanicAlertRequest) (port.Receipt, error) {
	return m.UpdatePanicAlertFunc(ctx, req)
}

func (m *BroadcastsMock) ReplayDeadLetters(ctx context.Context, limit int) (port.ReplayReport, error) {
	return m.ReplayDeadLettersFunc(ctx, limit)
}

const directMessageBody = `{"message":{
	"id":1,"content":"hi","message_type":"text",
	"sender_id":10,"recipient_id":20,"created_at":"2026-06-01T09:00:00Z",
	"sender":{"id":10,"name":"Dr. Reyes","roles":["therapist"]},
	"recipient":{"id":20,"name":"Milo"}}}`

func post(t *testing.T, h http.Handler, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSendDirectMessageAccepted(t *testing.T) {
	var got port.SendMessageRequest
	mock := &BroadcastsMock{SendMessageFunc: func(_ context.Context, req port.SendMessageRequest) (port.Receipt, error) {
		got = req
		return port.Receipt{ID: "r1", Event: "message.sent", Channels: []string{"user.10", "user.20"}, Delivered: true}, nil
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock})

	rec := post(t, router, "/v1/broadcasts/messages", directMessageBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var receipt port.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.True(t, receipt.Delivered)
	assert.Equal(t, []string{"user.10", "user.20"}, receipt.Channels)
	assert.Equal(t, int64(20), got.Message.Recipient.ID)
}

func TestDirectMessageEndpointRejectsGroupMessages(t *testing.T) {
	router := NewRouter(RouterConfig{Broadcasts: &BroadcastsMock{}})
	body := strings.Replace(directMessageBody, `"recipient_id":20`, `"group_id":5`, 1)

	rec := post(t, router, "/v1/broadcasts/messages", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedAndInvalidBodies(t *testing.T) {
	router := NewRouter(RouterConfig{Broadcasts: &BroadcastsMock{}})

	rec := post(t, router, "/v1/broadcasts/messages", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = post(t, router, "/v1/broadcasts/group-members/added", `{"group_id":0,"user_id":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "GroupID")
}

func TestDomainErrorsAreUnprocessable(t *testing.T) {
	mock := &BroadcastsMock{
		AddGroupMemberFunc: func(context.Context, port.AddGroupMemberRequest) (port.Receipt, error) {
			return port.Receipt{}, domain.Missing("group-member.added", "group")
		},
		ChangeConnectionStatusFunc: func(context.Context, port.ChangeConnectionStatusRequest) (port.Receipt, error) {
			return port.Receipt{}, &domain.TransitionError{Entity: "connection", From: "declined", To: "active"}
		},
	}
	router := NewRouter(RouterConfig{Broadcasts: mock})

	rec := post(t, router, "/v1/broadcasts/group-members/added", `{"group_id":5,"user_id":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unresolved Relation")

	rec = post(t, router, "/v1/broadcasts/connections/status", `{
		"connection":{"id":1,"therapist_id":10,"client_id":20,"status":"declined"},
		"new_status":"active"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Transition")
}

func TestUnknownErrorsAreOpaque(t *testing.T) {
	mock := &BroadcastsMock{RemoveGroupMemberFunc: func(context.Context, port.RemoveGroupMemberRequest) (port.Receipt, error) {
		return port.Receipt{}, errors.New("secret internals")
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock})

	rec := post(t, router, "/v1/broadcasts/group-members/removed", `{"group_id":5,"user_id":3}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret internals")
}

func TestFailedPushIsStillAccepted(t *testing.T) {
	mock := &BroadcastsMock{TriggerPanicAlertFunc: func(context.Context, port.TriggerPanicAlertRequest) (port.Receipt, error) {
		return port.Receipt{ID: "r", Delivered: false, Error: "timeout", DeadLettered: true}, nil
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock})

	rec := post(t, router, "/v1/broadcasts/panic-alerts/triggered", `{"alert":{
		"id":77,"child_id":20,"triggered_at":"2026-06-01T09:00:00Z","status":"active",
		"child":{"id":20,"name":"Milo"},"notifications":[{"id":1,"notified_user_id":30}]}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"dead_lettered":true`)
}

func TestReplayRequiresPermission(t *testing.T) {
	verifier, err := auth.NewVerifier("test-secret", "careplatform", "fanout")
	require.NoError(t, err)
	var gotLimit int
	mock := &BroadcastsMock{ReplayDeadLettersFunc: func(_ context.Context, limit int) (port.ReplayReport, error) {
		gotLimit = limit
		return port.ReplayReport{Pending: 2, Replayed: 2}, nil
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock, Verifier: verifier})

	rec := post(t, router, "/v1/dead-letters/replay", `{"limit":5}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	guardianToken, err := verifier.Issue(30, []string{"guardian"}, nil, time.Minute)
	require.NoError(t, err)
	rec = post(t, router, "/v1/dead-letters/replay", `{"limit":5}`, "Authorization", "Bearer "+guardianToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, err := verifier.Issue(1, []string{"admin"}, nil, time.Minute)
	require.NoError(t, err)
	rec = post(t, router, "/v1/dead-letters/replay", `{"limit":5}`, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, gotLimit)
	assert.JSONEq(t, `{"pending":2,"replayed":2,"failed":0}`, rec.Body.String())

	rec = post(t, router, "/v1/dead-letters/replay", "", "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, rec.Code, "empty body means default limit")
	assert.Equal(t, 0, gotLimit)
}

func TestReplayUnavailable(t *testing.T) {
	verifier, err := auth.NewVerifier("test-secret", "", "")
	require.NoError(t, err)
	mock := &BroadcastsMock{ReplayDeadLettersFunc: func(context.Context, int) (port.ReplayReport, error) {
		return port.ReplayReport{}, service.ErrReplayUnavailable
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock, Verifier: verifier})
	adminToken, err := verifier.Issue(1, []string{"admin"}, nil, time.Minute)
	require.NoError(t, err)

	rec := post(t, router, "/v1/dead-letters/replay", "{}", "Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReplayIsNotServedWithoutVerifier(t *testing.T) {
	called := false
	mock := &BroadcastsMock{ReplayDeadLettersFunc: func(context.Context, int) (port.ReplayReport, error) {
		called = true
		return port.ReplayReport{}, nil
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock})

	rec := post(t, router, "/v1/dead-letters/replay", "{}")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "fanoutd replay")
	assert.False(t, called)
}

func TestIngestRequiresPlatformTokenWhenVerifierIsSet(t *testing.T) {
	verifier, err := auth.NewVerifier("test-secret", "", "")
	require.NoError(t, err)
	calls := 0
	mock := &BroadcastsMock{AddGroupMemberFunc: func(context.Context, port.AddGroupMemberRequest) (port.Receipt, error) {
		calls++
		return port.Receipt{ID: "r", Delivered: true}, nil
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock, Verifier: verifier})
	body := `{"group_id":5,"user_id":3}`

	rec := post(t, router, "/v1/broadcasts/group-members/added", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	therapistToken, err := verifier.Issue(10, []string{"therapist"}, nil, time.Minute)
	require.NoError(t, err)
	rec = post(t, router, "/v1/broadcasts/group-members/added", body, "Authorization", "Bearer "+therapistToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, calls)

	platformToken, err := verifier.Issue(1, []string{"platform"}, nil, time.Minute)
	require.NoError(t, err)
	rec = post(t, router, "/v1/broadcasts/group-members/added", body, "Authorization", "Bearer "+platformToken)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 1, calls)
}

func TestHealthz(t *testing.T) {
	router := NewRouter(RouterConfig{
		Broadcasts: &BroadcastsMock{},
		Checks: map[string]HealthCheck{
			"transport": func(context.Context) error { return nil },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"transport":"ok"}}`, rec.Body.String())

	router = NewRouter(RouterConfig{
		Broadcasts: &BroadcastsMock{},
		Checks: map[string]HealthCheck{
			"transport": func(context.Context) error { return errors.New("nats disconnected") },
		},
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(RouterConfig{Broadcasts: &BroadcastsMock{}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
