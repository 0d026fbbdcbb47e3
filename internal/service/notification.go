package service

import (
	"context"
	"log/slog"
	"time"

	dwotel "github.com/Strob0t/DealWatch/internal/adapter/otel"
	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
	"github.com/Strob0t/DealWatch/internal/port/notifier"
)

// NotificationService delivers a rule's deals over the channels the rule
// asks for.
type NotificationService struct {
	email   notifier.Notifier
	webhook notifier.Notifier
	now     func() time.Time
}

// NewNotificationService creates a NotificationService. Either channel may be
// nil, in which case rules asking for it are skipped.
func NewNotificationService(email, webhook notifier.Notifier) *NotificationService {
	return &NotificationService{email: email, webhook: webhook, now: time.Now}
}

// SendForRule notifies the owner of r about deals. Channel errors are logged
// but do not interrupt delivery on the other channel.
func (s *NotificationService) SendForRule(ctx context.Context, r *rule.Rule, deals []deal.Found) (emailSent, webhookSent bool) {
	if len(deals) == 0 {
		return false, false
	}

	n := notifier.Notification{
		Rule:      notifier.RefOf(r),
		Deals:     deals,
		Timestamp: s.now().UTC(),
	}

	if r.WantsEmail() && r.NotificationEmail != "" {
		n.Recipient = r.NotificationEmail
		emailSent = s.send(ctx, s.email, n)
	}
	if r.WantsWebhook() && r.NotificationWebhook != "" {
		n.Recipient = r.NotificationWebhook
		webhookSent = s.send(ctx, s.webhook, n)
	}
	return emailSent, webhookSent
}

func (s *NotificationService) send(ctx context.Context, provider notifier.Notifier, n notifier.Notification) bool {
	if provider == nil {
		slog.WarnContext(ctx, "notification channel not available", "rule_id", n.Rule.ID)
		return false
	}

	ctx, span := dwotel.StartNotifySpan(ctx, n.Rule.ID, provider.Name())
	defer span.End()

	if err := provider.Send(ctx, n); err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "notification send failed",
			"provider", provider.Name(),
			"rule_id", n.Rule.ID,
			"deals", len(n.Deals),
			"error", err,
		)
		return false
	}
	slog.InfoContext(ctx, "notification sent", "provider", provider.Name(), "rule_id", n.Rule.ID, "deals", len(n.Deals))
	return true
}
