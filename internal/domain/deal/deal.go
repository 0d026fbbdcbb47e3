// Package deal defines discovered travel deals and the discount arithmetic
// used to qualify them.
package deal

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/DealWatch/internal/domain/rule"
)

// DefaultCurrency is stored when the source does not report one.
const DefaultCurrency = "USD"

// Found is a deal produced by discovery that has not been persisted yet.
type Found struct {
	RuleID             int64           `json:"rule_id"`
	UserID             int64           `json:"user_id"`
	Type               rule.OfferType  `json:"type"`
	Title              string          `json:"title"`
	Origin             string          `json:"origin"`
	Destination        string          `json:"destination"`
	DepartureDate      time.Time       `json:"departure_date"`
	ReturnDate         *time.Time      `json:"return_date,omitempty"`
	OriginalPrice      decimal.Decimal `json:"original_price"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	DiscountPercentage int             `json:"discount_percentage"`
	Currency           string          `json:"currency"`
	OfferURL           string          `json:"offer_url"`
	Provider           string          `json:"provider"`
	Details            json.RawMessage `json:"details,omitempty"`
}

// Deal is a persisted row of the deals history.
type Deal struct {
	ID int64 `json:"id"`
	Found
	IsValid     bool       `json:"is_valid"`
	ValidatedAt time.Time  `json:"validated_at"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

var hundred = decimal.NewFromInt(100)

// CalculateDiscount returns the whole-number percentage by which current
// undercuts base. It is zero when base is missing or not above current.
// Halves round up.
func CalculateDiscount(current, base decimal.Decimal) int {
	if !base.IsPositive() || base.LessThanOrEqual(current) {
		return 0
	}
	pct := base.Sub(current).Div(base).Mul(hundred)
	return int(pct.Round(0).IntPart())
}

// GroupByUser buckets deals by owner, keeping input order inside each bucket.
func GroupByUser(deals []Found) map[int64][]Found {
	out := make(map[int64][]Found)
	for _, d := range deals {
		out[d.UserID] = append(out[d.UserID], d)
	}
	return out
}

// GroupByRule buckets deals by the rule that found them, keeping input order.
func GroupByRule(deals []Found) map[int64][]Found {
	out := make(map[int64][]Found)
	for _, d := range deals {
		out[d.RuleID] = append(out[d.RuleID], d)
	}
	return out
}

// SortedKeys returns the keys of a grouping in ascending order so fan-out is
// deterministic.
func SortedKeys(groups map[int64][]Found) []int64 {
	keys := make([]int64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
