// Package ws implements the widget event feed: a WebSocket hub partitioned by
// tenant. A connection only ever receives events raised for its own tenant.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/daybookhq/daybook/internal/domain/catalog"
	"github.com/daybookhq/daybook/internal/domain/tenant"
	"github.com/daybookhq/daybook/internal/middleware"
	"github.com/daybookhq/daybook/internal/port/broadcast"
)

// Message is the envelope for all widget feed messages, both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CatalogSource provides the active package list for the READY event.
type CatalogSource interface {
	Packages(ctx context.Context, tenantID string) ([]catalog.Package, error)
}

// conn wraps a single widget session.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	tenantID string
}

// Hub manages widget sessions grouped by tenant and fans events out to them.
type Hub struct {
	originPattern string
	catalog       CatalogSource

	mu    sync.RWMutex
	conns map[string]map[*conn]struct{}
}

// NewHub creates a widget hub. originPattern is the fallback host pattern for
// tenants without a registered embed origin; empty means any origin. catalog
// may be nil, in which case READY carries no package summary.
func NewHub(originPattern string, catalog CatalogSource) *Hub {
	return &Hub{
		originPattern: originPattern,
		catalog:       catalog,
		conns:         make(map[string]map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a widget session. The tenant must already
// be resolved on the request context; the route runs behind the tenant key
// middleware (the widget passes its key as ?key=).
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"invalid tenant key"}`, http.StatusUnauthorized)
		return
	}

	opts := &websocket.AcceptOptions{}
	switch {
	case tc.EmbedOrigin != "":
		opts.OriginPatterns = []string{originHost(tc.EmbedOrigin)}
	case h.originPattern != "":
		opts.OriginPatterns = []string{h.originPattern}
	default:
		opts.InsecureSkipVerify = true
	}

	wsConn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "tenant", tc.ID, "error", err)
		return
	}

	// The request context dies when this handler returns; the session context
	// keeps its values (request id, tenant id) but not its cancellation.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: wsConn, cancel: cancel, tenantID: tc.ID}

	h.mu.Lock()
	if h.conns[tc.ID] == nil {
		h.conns[tc.ID] = make(map[*conn]struct{})
	}
	h.conns[tc.ID][c] = struct{}{}
	h.mu.Unlock()

	slog.Info("widget connected", "tenant", tc.ID, "remote", r.RemoteAddr)

	h.sendReady(ctx, c, tc)

	go h.readLoop(ctx, c)
}

// sendReady pushes the READY event to a fresh session: tenant branding plus
// the active package summary the widget renders first.
func (h *Hub) sendReady(ctx context.Context, c *conn, tc tenant.Context) {
	ready := ReadyEvent{TenantName: tc.Name, Branding: tc.Branding}
	if h.catalog != nil {
		pkgs, err := h.catalog.Packages(ctx, tc.ID)
		if err != nil {
			slog.Warn("widget ready: load packages", "tenant", tc.ID, "error", err)
		}
		for _, p := range pkgs {
			ready.Packages = append(ready.Packages, PackageSummary{
				ID:    p.ID,
				Slug:  p.Slug,
				Name:  p.Name,
				Price: p.Price,
			})
		}
	}

	payload, err := json.Marshal(ready)
	if err != nil {
		slog.Error("marshal ready event", "tenant", tc.ID, "error", err)
		return
	}
	data, err := json.Marshal(Message{Type: broadcast.EventReady, Payload: payload})
	if err != nil {
		return
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("widget ready write failed", "tenant", tc.ID, "error", err)
	}
}

// readLoop consumes inbound messages until the session drops. The iframe
// reports size changes inbound; those are relayed to the tenant's sessions so
// the host page can adjust the frame.
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == broadcast.EventResize {
			h.BroadcastToTenant(ctx, c.tenantID, msg)
		}
	}
}

// BroadcastToTenant sends a message to every session of one tenant.
func (h *Hub) BroadcastToTenant(ctx context.Context, tenantID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[tenantID]))
	for c := range h.conns[tenantID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "tenant", tenantID, "error", err)
			h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active sessions across all tenants.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, peers := range h.conns {
		n += len(peers)
	}
	return n
}

// Close drops every session. Used on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*conn
	for _, peers := range h.conns {
		for c := range peers {
			all = append(all, c)
		}
	}
	h.conns = make(map[string]map[*conn]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.conns[c.tenantID]
	if !ok {
		return
	}
	if _, ok := peers[c]; !ok {
		return
	}
	c.cancel()
	delete(peers, c)
	if len(peers) == 0 {
		delete(h.conns, c.tenantID)
	}
	slog.Info("widget disconnected", "tenant", c.tenantID)
}

// originHost extracts the host pattern Accept matches the Origin header
// against. Embed origins are stored as full origins (scheme://host).
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}
