// Package notifier defines the notification port (interface) and capabilities.
package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
)

// ErrNotConfigured is returned when a notifier has no recipient or endpoint.
var ErrNotConfigured = errors.New("notifier: not configured")

// RuleRef identifies the rule a notification is about.
type RuleRef struct {
	ID   int64          `json:"id"`
	Name string         `json:"name"`
	Type rule.OfferType `json:"type"`
}

// RefOf summarises r for a notification.
func RefOf(r *rule.Rule) RuleRef {
	return RuleRef{ID: r.ID, Name: r.Name, Type: r.Type}
}

// Notification is a batch of deals found for one rule, addressed to one
// recipient (an email address or a webhook URL, depending on the channel).
type Notification struct {
	Recipient string
	Rule      RuleRef
	Deals     []deal.Found
	Timestamp time.Time
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	Signed         bool `json:"signed"`
}

// Notifier is the port interface for sending notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier ("email", "webhook").
	Name() string

	// Capabilities returns what this notifier supports.
	Capabilities() Capabilities

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
