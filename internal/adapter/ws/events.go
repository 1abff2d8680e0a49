package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/daybookhq/daybook/internal/port/broadcast"
)

// ReadyEvent greets a fresh widget session with everything it needs to render.
type ReadyEvent struct {
	TenantName string           `json:"tenant_name"`
	Branding   json.RawMessage  `json:"branding,omitempty"`
	Packages   []PackageSummary `json:"packages"`
}

// PackageSummary is the slice of a package the widget shows in its list view.
type PackageSummary struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

var _ broadcast.Broadcaster = (*Hub)(nil)

// BroadcastEvent marshals a typed event and sends it to the tenant's sessions.
func (h *Hub) BroadcastEvent(ctx context.Context, tenantID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToTenant(ctx, tenantID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
