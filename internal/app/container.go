// Package app wires adapters to the broadcast service according to configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	rediscache "github.com/strogmv/fanout/internal/adapter/cache/redis"
	smtpmailer "github.com/strogmv/fanout/internal/adapter/mailer/smtp"
	"github.com/strogmv/fanout/internal/adapter/notifications"
	memoryrepo "github.com/strogmv/fanout/internal/adapter/repository/memory"
	"github.com/strogmv/fanout/internal/adapter/repository/postgres"
	s3repo "github.com/strogmv/fanout/internal/adapter/repository/s3"
	memorytransport "github.com/strogmv/fanout/internal/adapter/transport/memory"
	natstransport "github.com/strogmv/fanout/internal/adapter/transport/nats"
	pushertransport "github.com/strogmv/fanout/internal/adapter/transport/pusher"
	redistransport "github.com/strogmv/fanout/internal/adapter/transport/redis"
	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/config"
	"github.com/strogmv/fanout/internal/pkg/auth"
	"github.com/strogmv/fanout/internal/pkg/circuitbreaker"
	"github.com/strogmv/fanout/internal/pkg/presence"
	"github.com/strogmv/fanout/internal/port"
	"github.com/strogmv/fanout/internal/service"
	transporthttp "github.com/strogmv/fanout/internal/transport/http"
	"github.com/strogmv/fanout/internal/transport/ws"
)

type Container struct {
	Config *config.Config
	Scheme channel.Scheme
	Redis  *redis.Client

	Transport   port.Transport
	Feed        port.Feed
	DeadLetters port.DeadLetterRepository
	Presence    *presence.Store
	Alerts      port.NotificationDispatcher
	Verifier    *auth.Verifier

	Dispatcher    *service.Dispatcher
	SvcBroadcasts port.Broadcasts
	Gateway       *ws.Gateway

	Checks  map[string]transporthttp.HealthCheck
	closers []func()
}

func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{
		Config: cfg,
		Checks: map[string]transporthttp.HealthCheck{},
	}
	if err := c.init(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) init(ctx context.Context) error {
	cfg := c.Config
	var err error
	c.Scheme, err = channel.NewScheme(cfg.ChannelAdminMonitoring, cfg.ChannelEmergencyAlerts)
	if err != nil {
		return err
	}

	if cfg.RedisAddr != "" {
		c.Redis, err = rediscache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		rdb := c.Redis
		c.onClose(func() { _ = rdb.Close() })
		c.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	c.Presence = presence.NewStore(c.Redis, cfg.PresenceTTL)

	if err := c.initTransport(); err != nil {
		return err
	}
	if err := c.initDeadLetters(ctx); err != nil {
		return err
	}
	c.initAlerts()

	if cfg.JWTSecret != "" {
		c.Verifier, err = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			return err
		}
	}

	breaker := circuitbreaker.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, cfg.BreakerHalfOpenMax,
		circuitbreaker.OnStateChange(service.ObserveBreaker))
	c.Dispatcher = service.NewDispatcher(c.Transport, c.Scheme,
		service.WithBreaker(breaker),
		service.WithPublishTimeout(cfg.PublishTimeout),
		service.WithAlerts(c.Alerts),
		service.WithDeadLetters(c.DeadLetters),
		service.WithPresence(c.Presence),
	)
	c.SvcBroadcasts = service.NewBroadcastsImpl(c.Dispatcher, c.DeadLetters, cfg.ReplayBatch)

	if c.Feed != nil && c.Verifier != nil {
		c.Gateway = ws.NewGateway(ws.Config{
			Verifier: c.Verifier,
			Scheme:   c.Scheme,
			Presence: c.Presence,
			Origins:  cfg.CORSOrigins,
		})
	}
	return nil
}

func (c *Container) initTransport() error {
	cfg := c.Config
	switch strings.ToLower(cfg.TransportDriver) {
	case "memory":
		bus := memorytransport.NewBus()
		c.Transport, c.Feed = bus, bus
	case "nats":
		client, err := natstransport.NewClient(cfg.NATSURL, cfg.NATSSubject, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		c.onClose(client.Close)
		c.Transport, c.Feed = client, client
		c.Checks["nats"] = func(context.Context) error {
			if !client.IsConnected() {
				return fmt.Errorf("nats is not connected")
			}
			return nil
		}
	case "redis":
		if c.Redis == nil {
			return fmt.Errorf("redis transport needs REDIS_ADDR")
		}
		client := redistransport.NewClient(c.Redis, cfg.RedisChannel)
		c.Transport, c.Feed = client, client
	case "pusher":
		c.Transport = pushertransport.NewClient(pushertransport.Config{
			AppID:         cfg.PusherAppID,
			Key:           cfg.PusherKey,
			Secret:        cfg.PusherSecret,
			Host:          cfg.PusherHost,
			Cluster:       cfg.PusherCluster,
			Secure:        cfg.PusherSecure,
			ChannelPrefix: cfg.PusherChannelPrefix,
			Timeout:       cfg.PublishTimeout,
		})
	default:
		return fmt.Errorf("unsupported transport driver %q", cfg.TransportDriver)
	}
	return nil
}

func (c *Container) initDeadLetters(ctx context.Context) error {
	cfg := c.Config
	switch strings.ToLower(cfg.DeadLetterDriver) {
	case "memory":
		c.DeadLetters = memoryrepo.NewDeadLetterRepository()
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		c.onClose(pool.Close)
		c.DeadLetters = postgres.NewDeadLetterRepository(pool)
		c.Checks["postgres"] = pool.Ping
	case "s3":
		repo, err := s3repo.New(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Endpoint, cfg.S3Prefix)
		if err != nil {
			return err
		}
		c.DeadLetters = repo
	default:
		return fmt.Errorf("unsupported dead letter driver %q", cfg.DeadLetterDriver)
	}
	return nil
}

func (c *Container) initAlerts() {
	cfg := c.Config
	var email port.NotificationSink
	if len(cfg.AlertEmails) > 0 {
		email = &notifications.EmailSink{
			Mailer:     smtpmailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom),
			Recipients: cfg.AlertEmails,
		}
	}
	c.Alerts = notifications.NewDispatcher(email, notifications.LogSink{})
}

// Router builds the HTTP surface: ingest API, operator endpoints, health,
// metrics and, for bus transports, the subscriber gateway.
func (c *Container) Router() http.Handler {
	rc := transporthttp.RouterConfig{
		Broadcasts:  c.SvcBroadcasts,
		Verifier:    c.Verifier,
		CORSOrigins: c.Config.CORSOrigins,
		Checks:      c.Checks,
	}
	if c.Gateway != nil {
		rc.Gateway = c.Gateway
	}
	return transporthttp.NewRouter(rc)
}

func (c *Container) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
