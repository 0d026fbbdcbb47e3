// Package broadcast defines the port for pushing real-time events to
// connected browser sessions.
package broadcast

import "context"

// Broadcaster sends real-time events to connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to every connected client.
	BroadcastEvent(ctx context.Context, eventType string, payload any)

	// PushToUser sends a typed event to the sessions of one user. A user
	// with no open session is not an error: the event is simply not seen.
	// It fails only when the payload cannot be encoded.
	PushToUser(ctx context.Context, userID int64, eventType string, payload any) error
}

// Event types pushed to browser sessions.
const (
	EventDealAlert    = "deal.alert"    // payload: alert.PushMessage
	EventJobCompleted = "job.completed" // payload: joblog.Result
)
