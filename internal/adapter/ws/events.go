package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/DealWatch/internal/port/broadcast"
)

// Event type constants for WebSocket messages.
const (
	EventDealAlert    = broadcast.EventDealAlert
	EventJobCompleted = broadcast.EventJobCompleted
)

var _ broadcast.Broadcaster = (*Hub)(nil)

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	msg, err := envelope(eventType, payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	h.Broadcast(ctx, msg)
}

// PushToUser marshals a typed event and sends it to one user's sessions.
func (h *Hub) PushToUser(ctx context.Context, userID int64, eventType string, payload any) error {
	msg, err := envelope(eventType, payload)
	if err != nil {
		return err
	}
	n, err := h.SendToUser(ctx, userID, msg)
	if err != nil {
		return err
	}
	slog.Debug("push delivered", "type", eventType, "user_id", userID, "sessions", n)
	return nil
}

func envelope(eventType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Message{Type: eventType, Payload: data}, nil
}
