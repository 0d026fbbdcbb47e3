package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/DealWatch/internal/domain"
	"github.com/Strob0t/DealWatch/internal/domain/alert"
	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/port/broadcast"
	"github.com/Strob0t/DealWatch/internal/port/database"
	"github.com/Strob0t/DealWatch/internal/port/messagequeue"
)

// PushResult counts the outcome of matching deals against push alerts.
type PushResult struct {
	AlertsTriggered   int
	NotificationsSent int
}

// PushAlertService manages push alerts and matches new deals against them.
type PushAlertService struct {
	store database.AlertStore
	push  broadcast.Broadcaster
	queue messagequeue.Queue
}

// NewPushAlertService creates a PushAlertService. push may be nil, in which
// case matches are counted but not delivered.
func NewPushAlertService(store database.AlertStore, push broadcast.Broadcaster) *PushAlertService {
	return &PushAlertService{store: store, push: push}
}

// SetQueue enables publishing alerts.triggered events.
func (s *PushAlertService) SetQueue(q messagequeue.Queue) { s.queue = q }

// ProcessPushAlerts checks every deal against its owner's active alerts.
// Each match counts as triggered; it counts as sent once the push has been
// handed to the broadcaster. Failures are logged, never returned.
func (s *PushAlertService) ProcessPushAlerts(ctx context.Context, deals []deal.Found) PushResult {
	var res PushResult
	if len(deals) == 0 {
		return res
	}

	active, err := s.store.ListActiveAlerts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "load push alerts failed", "error", err)
		return res
	}
	if len(active) == 0 {
		slog.DebugContext(ctx, "no active push alerts")
		return res
	}

	slog.InfoContext(ctx, "checking deals against push alerts", "deals", len(deals), "alerts", len(active))

	byUser := alert.GroupByUser(active)
	for i := range deals {
		d := &deals[i]
		for j := range byUser[d.UserID] {
			a := &byUser[d.UserID][j]
			if !a.Matches(d) {
				continue
			}
			res.AlertsTriggered++

			msg := alert.FormatPush(d)
			if s.deliver(ctx, a, d, msg) {
				res.NotificationsSent++
			}
			s.publish(ctx, a, d, msg)
		}
	}
	return res
}

func (s *PushAlertService) deliver(ctx context.Context, a *alert.PushAlert, d *deal.Found, msg alert.PushMessage) bool {
	if s.push == nil {
		slog.InfoContext(ctx, "push alert matched, no broadcaster", "alert_id", a.ID, "user_id", a.UserID, "title", msg.Title)
		return false
	}
	if err := s.push.PushToUser(ctx, a.UserID, broadcast.EventDealAlert, msg); err != nil {
		slog.WarnContext(ctx, "push delivery failed", "alert_id", a.ID, "user_id", a.UserID, "error", err)
		return false
	}
	slog.InfoContext(ctx, "push alert sent", "alert_id", a.ID, "user_id", a.UserID, "deal", d.Title)
	return true
}

func (s *PushAlertService) publish(ctx context.Context, a *alert.PushAlert, d *deal.Found, msg alert.PushMessage) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.AlertTriggeredPayload{
		AlertID: a.ID,
		UserID:  a.UserID,
		Deal:    dealSummary(d),
		Title:   msg.Title,
		Body:    msg.Body,
	})
	if err != nil {
		slog.ErrorContext(ctx, "marshal alert event", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectAlertsTriggered, data); err != nil {
		slog.WarnContext(ctx, "publish alert event failed", "alert_id", a.ID, "error", err)
	}
}

func dealSummary(d *deal.Found) messagequeue.DealSummary {
	return messagequeue.DealSummary{
		RuleID:             d.RuleID,
		UserID:             d.UserID,
		Title:              d.Title,
		DiscountPercentage: d.DiscountPercentage,
		CurrentPrice:       d.CurrentPrice.StringFixed(2),
		Currency:           d.Currency,
		OfferURL:           d.OfferURL,
	}
}

// List returns the user's push alerts.
func (s *PushAlertService) List(ctx context.Context, userID int64) ([]alert.PushAlert, error) {
	return s.store.ListAlerts(ctx, userID)
}

// Create validates the request and stores a new alert owned by userID.
func (s *PushAlertService) Create(ctx context.Context, userID int64, req *alert.CreateRequest) (*alert.PushAlert, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a := req.ToAlert(userID)
	return s.store.CreateAlert(ctx, &a)
}

// Update applies a partial update to one of the user's alerts.
func (s *PushAlertService) Update(ctx context.Context, id, userID int64, req *alert.UpdateRequest) (*alert.PushAlert, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	req.Apply(a)
	return s.store.UpdateAlert(ctx, a)
}

// Delete removes one of the user's alerts.
func (s *PushAlertService) Delete(ctx context.Context, id, userID int64) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	return s.store.DeleteAlert(ctx, id)
}

// Toggle sets the alert's active flag, or flips it when active is nil.
func (s *PushAlertService) Toggle(ctx context.Context, id, userID int64, active *bool) (*alert.PushAlert, error) {
	a, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	next := !a.IsActive
	if active != nil {
		next = *active
	}
	if err := s.store.SetAlertActive(ctx, id, next); err != nil {
		return nil, err
	}
	a.IsActive = next
	return a, nil
}

// owned loads an alert and hides it from anyone but its owner.
func (s *PushAlertService) owned(ctx context.Context, id, userID int64) (*alert.PushAlert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, fmt.Errorf("alert %d: %w", id, domain.ErrNotFound)
	}
	return a, nil
}
