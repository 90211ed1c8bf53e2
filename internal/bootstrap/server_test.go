package bootstrap

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/fanout/internal/app"
	"github.com/strogmv/fanout/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func testContainer(t *testing.T) *app.Container {
	t.Helper()
	c, err := app.NewContainer(context.Background(), &config.Config{
		ServiceName:            "fanoutd",
		HTTPAddr:               freeAddr(t),
		TransportDriver:        "memory",
		PublishTimeout:         time.Second,
		BreakerThreshold:       3,
		BreakerCooldown:        time.Second,
		BreakerHalfOpenMax:     1,
		ChannelAdminMonitoring: "admin-monitoring",
		ChannelEmergencyAlerts: "emergency-alerts",
		DeadLetterDriver:       "memory",
		ReplayBatch:            10,
		JWTSecret:              "secret",
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestRunServesUntilCancelled(t *testing.T) {
	c := testContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, c) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + c.Config.HTTPAddr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestReplayWithEmptyStore(t *testing.T) {
	assert.NoError(t, Replay(context.Background(), testContainer(t), 0))
}
