package realtime

import (
	"log/slog"
	"sort"
	"sync"

	"versaid/cmd/identity"
	v1 "versaid/shared/contracts/realtime/v1"
)

// Observer receives hub and gateway events. Implementations must be safe for
// concurrent use. *metrics.Metrics satisfies it.
type Observer interface {
	WSConnected()
	WSDisconnected()
	SSOPublished(delivered, dropped int)
}

// Hub is the connection registry. Every registered connection has an optional
// VERSA-ID subscription; Publish fans messages out over that index.
type Hub struct {
	log *slog.Logger
	obs Observer

	mu        sync.RWMutex
	clients   map[string]*Client
	byVersaID map[string]map[string]*Client
}

// NewHub constructs a Hub instance. obs may be nil.
func NewHub(log *slog.Logger, obs Observer) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:       log,
		obs:       obs,
		clients:   make(map[string]*Client),
		byVersaID: make(map[string]map[string]*Client),
	}
}

// Register adds an unsubscribed connection.
func (h *Hub) Register(c *Client) {
	if c == nil {
		return
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	if h.obs != nil {
		h.obs.WSConnected()
	}
}

// Unregister removes the connection and its subscription. Unknown ids are a no-op.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		h.unindexLocked(c)
		delete(h.clients, connID)
	}
	h.mu.Unlock()

	if ok && h.obs != nil {
		h.obs.WSDisconnected()
	}
}

// Subscribe records versaID for the connection, replacing any earlier
// subscription. It reports false when the connection is not registered.
func (h *Hub) Subscribe(connID, versaID string) bool {
	key := identity.NormalizeVersaID(versaID)
	if key == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	if c.versaID == key {
		return true
	}
	h.unindexLocked(c)

	set := h.byVersaID[key]
	if set == nil {
		set = make(map[string]*Client)
		h.byVersaID[key] = set
	}
	set[c.ID] = c
	c.versaID = key
	return true
}

// SubscriptionOf returns the VERSA-ID the connection is subscribed under.
func (h *Hub) SubscriptionOf(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	if !ok || c.versaID == "" {
		return "", false
	}
	return c.versaID, true
}

// Publish enqueues msg for every connection subscribed under versaID and
// returns how many accepted it. Publish never blocks on a slow connection:
// a full send queue drops the message for that connection.
func (h *Hub) Publish(versaID string, msg v1.SSORequest) int {
	key := identity.NormalizeVersaID(versaID)
	if key == "" {
		return 0
	}

	h.mu.RLock()
	set := h.byVersaID[key]
	targets := make([]*Client, 0, len(set))
	for _, c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	// Deterministic order keeps logs readable.
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

	delivered, dropped := 0, 0
	for _, c := range targets {
		if c.offer(msg) {
			delivered++
			continue
		}
		dropped++
		h.log.Warn("ws.publish.drop", "conn_id", c.ID, "versa_id", key)
	}

	if h.obs != nil {
		h.obs.SSOPublished(delivered, dropped)
	}
	h.log.Debug("ws.publish", "versa_id", key, "delivered", delivered, "dropped", dropped)
	return delivered
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of connections subscribed under versaID.
func (h *Hub) SubscriberCount(versaID string) int {
	key := identity.NormalizeVersaID(versaID)

	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byVersaID[key])
}

// CloseAll signals every registered connection to shut down. Gateways
// unregister the connections as their loops exit.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Close()
	}
}

func (h *Hub) unindexLocked(c *Client) {
	if c.versaID == "" {
		return
	}
	if set := h.byVersaID[c.versaID]; set != nil {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.byVersaID, c.versaID)
		}
	}
	c.versaID = ""
}
