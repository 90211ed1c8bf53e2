// Package ws is the subscriber gateway for bus transports. Clients connect
// with a platform token, subscribe to the channels they may read and receive
// every envelope published to them. Delivery is at-most-once.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/pkg/auth"
	"github.com/strogmv/fanout/internal/pkg/errors"
	"github.com/strogmv/fanout/internal/pkg/logger"
	"github.com/strogmv/fanout/internal/port"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	defaultBacklog = 64
)

type Config struct {
	Verifier *auth.Verifier
	Scheme   channel.Scheme
	Presence port.PresenceStore
	// Origins limits browser origins; empty allows any.
	Origins []string
	// Backlog is the per-client queue length before frames are dropped.
	Backlog int
}

type Gateway struct {
	cfg      Config
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultBacklog
	}
	g := &Gateway{cfg: cfg, hub: NewHub()}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.Origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range g.cfg.Origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Run feeds published envelopes to connected clients until ctx is done.
func (g *Gateway) Run(ctx context.Context, feed port.Feed) error {
	stop, err := feed.Subscribe(ctx, g.hub.Deliver)
	if err != nil {
		return err
	}
	<-ctx.Done()
	return stop()
}

type inbound struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type client struct {
	conn     *websocket.Conn
	userID   int64
	claims   *auth.Claims
	send     chan []byte
	channels map[channel.Name]struct{}
}

// enqueue never blocks; false means the frame was dropped.
func (c *client) enqueue(raw []byte) bool {
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	if token == "" {
		errors.WriteError(w, r, errors.New(http.StatusUnauthorized, "Unauthorized", "JWT token required"))
		return
	}
	claims, err := g.cfg.Verifier.Verify(token)
	if err != nil {
		errors.WriteError(w, r, errors.New(http.StatusUnauthorized, "Unauthorized", "Invalid JWT"))
		return
	}
	userID, _ := claims.UserID()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		return
	}
	ctx := r.Context()
	log := logger.From(ctx).With("user_id", userID)

	c := &client{
		conn:     conn,
		userID:   userID,
		claims:   claims,
		send:     make(chan []byte, g.cfg.Backlog),
		channels: make(map[channel.Name]struct{}),
	}
	g.hub.register(c)
	g.touch(ctx, userID)
	log.Debug("subscriber connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.writePump(ctx, c)
	}()
	g.readPump(ctx, c)

	if g.hub.unregister(c) == 0 && g.cfg.Presence != nil {
		if err := g.cfg.Presence.Leave(ctx, userID); err != nil {
			log.Warn("presence leave failed", "error", err)
		}
	}
	wg.Wait()
	log.Debug("subscriber disconnected")
}

func (g *Gateway) touch(ctx context.Context, userID int64) {
	if g.cfg.Presence == nil {
		return
	}
	if err := g.cfg.Presence.Touch(ctx, userID, time.Now()); err != nil {
		logger.From(ctx).Warn("presence touch failed", "user_id", userID, "error", err)
	}
}

func (g *Gateway) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.From(ctx).Debug("subscriber read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		name := channel.Name(strings.TrimSpace(msg.Channel))
		switch msg.Action {
		case "subscribe":
			if err := authorize(g.cfg.Scheme, c.claims, name); err != nil {
				g.hub.send(c, frame{Event: "subscription_error", Channel: string(name)})
				continue
			}
			g.hub.subscribe(c, name)
			g.hub.send(c, frame{Event: "subscription_succeeded", Channel: string(name)})
		case "unsubscribe":
			g.hub.unsubscribe(c, name)
		case "ping":
			g.touch(ctx, c.userID)
			g.hub.send(c, frame{Event: "pong"})
		default:
			g.hub.send(c, frame{Event: "error", Channel: string(name)})
		}
	}
}

func (g *Gateway) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			g.touch(ctx, c.userID)
		}
	}
}
