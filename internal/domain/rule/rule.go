// Package rule defines the monitoring rule domain entity.
package rule

import (
	"fmt"
	"time"

	"github.com/Strob0t/DealWatch/internal/domain"
)

// OfferType is the kind of travel offer a rule watches.
type OfferType string

const (
	TypeFlight OfferType = "flight"
	TypeCruise OfferType = "cruise"
)

// NotificationType selects the channels used when a rule finds deals.
type NotificationType string

const (
	NotifyEmail   NotificationType = "email"
	NotifyWebhook NotificationType = "webhook"
	NotifyBoth    NotificationType = "both"
)

// DefaultMinDiscount is the discount threshold applied when none is given.
const DefaultMinDiscount = 50

// Rule is a user-defined search criterion checked by the deals job.
type Rule struct {
	ID                  int64            `json:"id"`
	UserID              int64            `json:"user_id"`
	Name                string           `json:"name"`
	Type                OfferType        `json:"type"`
	Origin              string           `json:"origin,omitempty"`
	Destination         string           `json:"destination,omitempty"`
	DepartureDate       *time.Time       `json:"departure_date,omitempty"`
	ReturnDate          *time.Time       `json:"return_date,omitempty"`
	MinDiscount         int              `json:"min_discount"`
	NotificationType    NotificationType `json:"notification_type"`
	NotificationEmail   string           `json:"notification_email,omitempty"`
	NotificationWebhook string           `json:"notification_webhook,omitempty"`
	IsActive            bool             `json:"is_active"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// WantsEmail reports whether the rule's notification type includes email.
func (r *Rule) WantsEmail() bool {
	return r.NotificationType == NotifyEmail || r.NotificationType == NotifyBoth
}

// WantsWebhook reports whether the rule's notification type includes a webhook.
func (r *Rule) WantsWebhook() bool {
	return r.NotificationType == NotifyWebhook || r.NotificationType == NotifyBoth
}

// Searchable reports whether the rule carries the route and date a flight
// search needs.
func (r *Rule) Searchable() bool {
	return r.Origin != "" && r.Destination != "" && r.DepartureDate != nil
}

// CreateRequest holds the fields needed to create a monitoring rule.
type CreateRequest struct {
	Name                string           `json:"name" validate:"required,max=255"`
	Type                OfferType        `json:"type" validate:"required,oneof=flight cruise"`
	Origin              string           `json:"origin,omitempty" validate:"max=100"`
	Destination         string           `json:"destination,omitempty" validate:"max=100"`
	DepartureDate       *time.Time       `json:"departure_date,omitempty"`
	ReturnDate          *time.Time       `json:"return_date,omitempty"`
	MinDiscount         *int             `json:"min_discount,omitempty" validate:"omitempty,min=0,max=100"`
	NotificationType    NotificationType `json:"notification_type,omitempty" validate:"omitempty,oneof=email webhook both"`
	NotificationEmail   string           `json:"notification_email,omitempty" validate:"omitempty,email,max=320"`
	NotificationWebhook string           `json:"notification_webhook,omitempty" validate:"omitempty,url"`
	IsActive            *bool            `json:"is_active,omitempty"`
}

// Validate checks field constraints of the request.
func (r *CreateRequest) Validate() error {
	if err := domain.ValidateStruct(r); err != nil {
		return err
	}
	return checkDates(r.DepartureDate, r.ReturnDate)
}

// ToRule builds a Rule owned by userID, filling in defaults.
func (r *CreateRequest) ToRule(userID int64) Rule {
	out := Rule{
		UserID:              userID,
		Name:                r.Name,
		Type:                r.Type,
		Origin:              r.Origin,
		Destination:         r.Destination,
		DepartureDate:       r.DepartureDate,
		ReturnDate:          r.ReturnDate,
		MinDiscount:         DefaultMinDiscount,
		NotificationType:    NotifyEmail,
		NotificationEmail:   r.NotificationEmail,
		NotificationWebhook: r.NotificationWebhook,
		IsActive:            true,
	}
	if r.MinDiscount != nil {
		out.MinDiscount = *r.MinDiscount
	}
	if r.NotificationType != "" {
		out.NotificationType = r.NotificationType
	}
	if r.IsActive != nil {
		out.IsActive = *r.IsActive
	}
	return out
}

// UpdateRequest holds a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	Name                *string           `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Type                *OfferType        `json:"type,omitempty" validate:"omitempty,oneof=flight cruise"`
	Origin              *string           `json:"origin,omitempty" validate:"omitempty,max=100"`
	Destination         *string           `json:"destination,omitempty" validate:"omitempty,max=100"`
	DepartureDate       *time.Time        `json:"departure_date,omitempty"`
	ReturnDate          *time.Time        `json:"return_date,omitempty"`
	MinDiscount         *int              `json:"min_discount,omitempty" validate:"omitempty,min=0,max=100"`
	NotificationType    *NotificationType `json:"notification_type,omitempty" validate:"omitempty,oneof=email webhook both"`
	NotificationEmail   *string           `json:"notification_email,omitempty" validate:"omitempty,email,max=320"`
	NotificationWebhook *string           `json:"notification_webhook,omitempty" validate:"omitempty,url"`
	IsActive            *bool             `json:"is_active,omitempty"`
}

// Validate checks field constraints of the request.
func (r *UpdateRequest) Validate() error {
	return domain.ValidateStruct(r)
}

// Apply copies the non-nil fields of the request onto rl and re-checks the
// date ordering of the result.
func (r *UpdateRequest) Apply(rl *Rule) error {
	if r.Name != nil {
		rl.Name = *r.Name
	}
	if r.Type != nil {
		rl.Type = *r.Type
	}
	if r.Origin != nil {
		rl.Origin = *r.Origin
	}
	if r.Destination != nil {
		rl.Destination = *r.Destination
	}
	if r.DepartureDate != nil {
		rl.DepartureDate = r.DepartureDate
	}
	if r.ReturnDate != nil {
		rl.ReturnDate = r.ReturnDate
	}
	if r.MinDiscount != nil {
		rl.MinDiscount = *r.MinDiscount
	}
	if r.NotificationType != nil {
		rl.NotificationType = *r.NotificationType
	}
	if r.NotificationEmail != nil {
		rl.NotificationEmail = *r.NotificationEmail
	}
	if r.NotificationWebhook != nil {
		rl.NotificationWebhook = *r.NotificationWebhook
	}
	if r.IsActive != nil {
		rl.IsActive = *r.IsActive
	}
	return checkDates(rl.DepartureDate, rl.ReturnDate)
}

func checkDates(departure, ret *time.Time) error {
	if departure != nil && ret != nil && ret.Before(*departure) {
		return fmt.Errorf("%w: return_date must not be before departure_date", domain.ErrValidation)
	}
	return nil
}
