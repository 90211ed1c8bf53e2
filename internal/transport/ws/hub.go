package ws

import (
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/strogmv/fanout/internal/channel"
	"github.com/strogmv/fanout/internal/port"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_ws_connections",
		Help: "Open subscriber connections.",
	})
	droppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_ws_dropped_frames_total",
		Help: "Frames dropped because a subscriber's buffer was full.",
	}, []string{"event"})
)

// frame is what subscribers receive, one per subscribed channel.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hub indexes live clients by channel. Delivery never blocks on a client.
type Hub struct {
	mu      sync.RWMutex
	subs    map[channel.Name]map[*client]struct{}
	clients map[*client]struct{}
	perUser map[int64]int
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[channel.Name]map[*client]struct{}),
		clients: make(map[*client]struct{}),
		perUser: make(map[int64]int),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.perUser[c.userID]++
	connectedClients.Inc()
}

// unregister drops c from every channel, closes its queue and returns how
// many connections its user still holds.
func (h *Hub) unregister(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return h.perUser[c.userID]
	}
	delete(h.clients, c)
	for name := range c.channels {
		if set := h.subs[name]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, name)
			}
		}
	}
	close(c.send)
	connectedClients.Dec()
	h.perUser[c.userID]--
	left := h.perUser[c.userID]
	if left <= 0 {
		delete(h.perUser, c.userID)
	}
	return left
}

func (h *Hub) subscribe(c *client, name channel.Name) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	set := h.subs[name]
	if set == nil {
		set = make(map[*client]struct{})
		h.subs[name] = set
	}
	set[c] = struct{}{}
	c.channels[name] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, name channel.Name) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.channels, name)
	if set := h.subs[name]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, name)
		}
	}
}

// Deliver is the feed handler: it queues env for every client subscribed to
// one of its channels and drops it for clients that are not keeping up.
func (h *Hub) Deliver(env port.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range env.Channels {
		set := h.subs[channel.Name(ch)]
		if len(set) == 0 {
			continue
		}
		raw, err := json.Marshal(frame{Event: env.Event, Channel: ch, ID: env.ID, Data: env.Data})
		if err != nil {
			continue
		}
		for c := range set {
			if !c.enqueue(raw) {
				droppedFrames.WithLabelValues(env.Event).Inc()
			}
		}
	}
}

// send queues a control frame for c. It takes the hub lock so it cannot race
// with unregister closing the queue.
func (h *Hub) send(c *client, f frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.enqueue(raw)
	}
}
