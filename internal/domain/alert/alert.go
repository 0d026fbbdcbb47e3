// Package alert defines push alerts: per-user criteria evaluated against
// every deal a job run discovers, independently of the rule that found it.
package alert

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/DealWatch/internal/domain"
	"github.com/Strob0t/DealWatch/internal/domain/deal"
)

// Type narrows an alert to one offer type, or both.
type Type string

const (
	TypeFlight Type = "flight"
	TypeCruise Type = "cruise"
	TypeBoth   Type = "both"
)

// DefaultMinDiscount is applied when a create request omits min_discount.
const DefaultMinDiscount = 50

// PushAlert is a browser push subscription filter owned by a user.
type PushAlert struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Name        string           `json:"name"`
	Type        Type             `json:"type"`
	Origin      string           `json:"origin,omitempty"`
	Destination string           `json:"destination,omitempty"`
	MinDiscount int              `json:"min_discount"`
	MaxPrice    *decimal.Decimal `json:"max_price,omitempty"`
	IsActive    bool             `json:"is_active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Matches reports whether d satisfies every criterion of the alert.
// Empty route fields on either side act as wildcards, and a missing or
// non-positive price ceiling is ignored.
func (a *PushAlert) Matches(d *deal.Found) bool {
	if a.Type != TypeBoth && string(d.Type) != string(a.Type) {
		return false
	}
	if a.Origin != "" && d.Origin != "" && d.Origin != a.Origin {
		return false
	}
	if a.Destination != "" && d.Destination != "" && d.Destination != a.Destination {
		return false
	}
	if d.DiscountPercentage < a.MinDiscount {
		return false
	}
	if a.MaxPrice != nil && a.MaxPrice.IsPositive() && d.CurrentPrice.GreaterThan(*a.MaxPrice) {
		return false
	}
	return true
}

// GroupByUser buckets alerts by owner, keeping input order.
func GroupByUser(alerts []PushAlert) map[int64][]PushAlert {
	out := make(map[int64][]PushAlert)
	for _, a := range alerts {
		out[a.UserID] = append(out[a.UserID], a)
	}
	return out
}

// PushMessage is the browser notification payload for a matched deal.
type PushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Data  map[string]string `json:"data"`
}

// FormatPush renders the browser notification for a deal.
func FormatPush(d *deal.Found) PushMessage {
	route := d.Title
	if d.Origin != "" && d.Destination != "" {
		route = d.Origin + " → " + d.Destination
	}
	return PushMessage{
		Title: fmt.Sprintf("🎉 %d%% OFF - %s", d.DiscountPercentage, route),
		Body: fmt.Sprintf("De %s %s por %s %s",
			d.Currency, d.OriginalPrice.StringFixed(2),
			d.Currency, d.CurrentPrice.StringFixed(2)),
		Icon: "/favicon.ico",
		Data: map[string]string{"url": d.OfferURL},
	}
}

// CreateRequest holds the fields needed to create a push alert.
type CreateRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Type        Type             `json:"type,omitempty" validate:"omitempty,oneof=flight cruise both"`
	Origin      string           `json:"origin,omitempty" validate:"max=100"`
	Destination string           `json:"destination,omitempty" validate:"max=100"`
	MinDiscount *int             `json:"min_discount,omitempty" validate:"omitempty,min=0,max=100"`
	MaxPrice    *decimal.Decimal `json:"max_price,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// Validate checks field constraints of the request.
func (r *CreateRequest) Validate() error {
	if err := domain.ValidateStruct(r); err != nil {
		return err
	}
	return checkMaxPrice(r.MaxPrice)
}

// ToAlert builds a PushAlert owned by userID, filling in defaults.
func (r *CreateRequest) ToAlert(userID int64) PushAlert {
	out := PushAlert{
		UserID:      userID,
		Name:        r.Name,
		Type:        TypeBoth,
		Origin:      r.Origin,
		Destination: r.Destination,
		MinDiscount: DefaultMinDiscount,
		MaxPrice:    r.MaxPrice,
		IsActive:    true,
	}
	if r.Type != "" {
		out.Type = r.Type
	}
	if r.MinDiscount != nil {
		out.MinDiscount = *r.MinDiscount
	}
	if r.IsActive != nil {
		out.IsActive = *r.IsActive
	}
	if out.MaxPrice != nil && out.MaxPrice.IsZero() {
		out.MaxPrice = nil
	}
	return out
}

// UpdateRequest holds a partial update. Nil fields are left untouched; a
// max_price of 0 removes the price ceiling.
type UpdateRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Type        *Type            `json:"type,omitempty" validate:"omitempty,oneof=flight cruise both"`
	Origin      *string          `json:"origin,omitempty" validate:"omitempty,max=100"`
	Destination *string          `json:"destination,omitempty" validate:"omitempty,max=100"`
	MinDiscount *int             `json:"min_discount,omitempty" validate:"omitempty,min=0,max=100"`
	MaxPrice    *decimal.Decimal `json:"max_price,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// Validate checks field constraints of the request.
func (r *UpdateRequest) Validate() error {
	if err := domain.ValidateStruct(r); err != nil {
		return err
	}
	return checkMaxPrice(r.MaxPrice)
}

// Apply copies the non-nil fields of the request onto a.
func (r *UpdateRequest) Apply(a *PushAlert) {
	if r.Name != nil {
		a.Name = *r.Name
	}
	if r.Type != nil {
		a.Type = *r.Type
	}
	if r.Origin != nil {
		a.Origin = *r.Origin
	}
	if r.Destination != nil {
		a.Destination = *r.Destination
	}
	if r.MinDiscount != nil {
		a.MinDiscount = *r.MinDiscount
	}
	if r.MaxPrice != nil {
		a.MaxPrice = r.MaxPrice
		if r.MaxPrice.IsZero() {
			a.MaxPrice = nil
		}
	}
	if r.IsActive != nil {
		a.IsActive = *r.IsActive
	}
}

func checkMaxPrice(p *decimal.Decimal) error {
	if p != nil && p.IsNegative() {
		return fmt.Errorf("%w: max_price must not be negative", domain.ErrValidation)
	}
	return nil
}
