package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/strogmv/fanout/internal/pkg/auth"
	"github.com/strogmv/fanout/internal/pkg/rbac"
	"github.com/strogmv/fanout/internal/port"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Broadcasts  port.Broadcasts
	Verifier    *auth.Verifier
	Gateway     http.Handler
	CORSOrigins []string
	Checks      map[string]HealthCheck
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", healthHandler(cfg.Checks))
	r.Handle("/metrics", promhttp.Handler())
	if cfg.Gateway != nil {
		r.Handle("/ws", cfg.Gateway)
	}

	h := NewBroadcastHandler(cfg.Broadcasts)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Route("/broadcasts", func(r chi.Router) {
			if cfg.Verifier != nil {
				r.Use(AuthMiddleware(cfg.Verifier))
				r.Use(RequirePermission(rbac.PermIngestBroadcasts))
			}
			r.Post("/messages", h.SendDirectMessage())
			r.Post("/group-messages", h.SendGroupMessage())
			r.Post("/group-members/added", h.AddGroupMember())
			r.Post("/group-members/removed", h.RemoveGroupMember())
			r.Post("/connections/status", h.ChangeConnectionStatus())
			r.Post("/panic-alerts/triggered", h.TriggerPanicAlert())
			r.Post("/panic-alerts/status", h.UpdatePanicAlert())
		})
		// Replay is never served without token verification.
		if cfg.Verifier == nil {
			r.Post("/dead-letters/replay", replayDisabled)
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Verifier))
			r.Use(RequirePermission(rbac.PermReplayDeadLetters))
			r.Post("/dead-letters/replay", h.ReplayDeadLetters())
		})
	})

	return otelhttp.NewHandler(r, "fanoutd",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/metrics" && req.URL.Path != "/healthz"
		}),
	)
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		result := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": result})
	}
}
