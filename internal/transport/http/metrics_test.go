package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/fanout/internal/port"
)

func TestMetricsUseRoutePatternLabels(t *testing.T) {
	mock := &BroadcastsMock{AddGroupMemberFunc: func(context.Context, port.AddGroupMemberRequest) (port.Receipt, error) {
		return port.Receipt{ID: "r", Delivered: true}, nil
	}}
	router := NewRouter(RouterConfig{Broadcasts: mock})
	counter := httpRequests.WithLabelValues("/v1/broadcasts/group-members/added", http.MethodPost, "202")
	before := testutil.ToFloat64(counter)

	rec := post(t, router, "/v1/broadcasts/group-members/added", `{"group_id":5,"user_id":3}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestWebSocketUpgradesStayOutOfLatency(t *testing.T) {
	gateway := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad handshake", http.StatusBadRequest)
	})
	router := NewRouter(RouterConfig{Broadcasts: &BroadcastsMock{}, Gateway: gateway})
	upgrades := wsUpgrades.WithLabelValues("400")
	before := testutil.ToFloat64(upgrades)
	series := testutil.CollectAndCount(httpDuration)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=x", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(upgrades))
	assert.Equal(t, series, testutil.CollectAndCount(httpDuration))
}
