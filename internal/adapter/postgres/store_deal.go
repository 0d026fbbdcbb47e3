package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
)

const dealColumns = `id, rule_id, user_id, type, title, origin, destination, departure_date, return_date,
	original_price::text, current_price::text, discount_percentage, currency, offer_url, provider,
	details, is_valid, validated_at, notified_at, created_at`

// DefaultDealLimit caps deal history listings when no limit is given.
const DefaultDealLimit = 50

func scanDeal(row scannable) (deal.Deal, error) {
	var (
		d                      deal.Deal
		offerType, orig, cur   string
		origin, dest, provider *string
		departure              *time.Time
		details                []byte
	)
	err := row.Scan(&d.ID, &d.RuleID, &d.UserID, &offerType, &d.Title, &origin, &dest,
		&departure, &d.ReturnDate, &orig, &cur, &d.DiscountPercentage, &d.Currency,
		&d.OfferURL, &provider, &details, &d.IsValid, &d.ValidatedAt, &d.NotifiedAt, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	d.Type = rule.OfferType(offerType)
	d.Origin = deref(origin)
	d.Destination = deref(dest)
	d.Provider = deref(provider)
	if departure != nil {
		d.DepartureDate = *departure
	}
	if len(details) > 0 {
		d.Details = json.RawMessage(details)
	}
	if d.OriginalPrice, err = parseNumeric(orig, "original_price"); err != nil {
		return d, err
	}
	if d.CurrentPrice, err = parseNumeric(cur, "current_price"); err != nil {
		return d, err
	}
	return d, nil
}

func (s *Store) CreateDeal(ctx context.Context, f *deal.Found) (*deal.Deal, error) {
	currency := f.Currency
	if currency == "" {
		currency = deal.DefaultCurrency
	}
	var details *string
	if len(f.Details) > 0 {
		v := string(f.Details)
		details = &v
	}

	d, err := scanDeal(s.pool.QueryRow(ctx,
		`INSERT INTO deals (rule_id, user_id, type, title, origin, destination, departure_date, return_date,
			original_price, current_price, discount_percentage, currency, offer_url, provider, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11, $12, $13, $14, $15::jsonb)
		 RETURNING `+dealColumns,
		f.RuleID, f.UserID, string(f.Type), f.Title, nullIfEmpty(f.Origin), nullIfEmpty(f.Destination),
		nullTime(f.DepartureDate), f.ReturnDate, numericText(f.OriginalPrice), numericText(f.CurrentPrice),
		f.DiscountPercentage, currency, f.OfferURL, nullIfEmpty(f.Provider), details))
	if err != nil {
		return nil, fmt.Errorf("create deal for rule %d: %w", f.RuleID, err)
	}
	return &d, nil
}

func (s *Store) ListDealsByUser(ctx context.Context, userID int64, limit int) ([]deal.Deal, error) {
	if limit <= 0 {
		limit = DefaultDealLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	deals, err := collect(rows, scanDeal)
	if err != nil {
		return nil, fmt.Errorf("scan deals: %w", err)
	}
	return deals, nil
}

func (s *Store) ListDealsByRule(ctx context.Context, ruleID, userID int64) ([]deal.Deal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE rule_id = $1 AND user_id = $2 ORDER BY created_at DESC, id DESC`,
		ruleID, userID)
	if err != nil {
		return nil, fmt.Errorf("list deals for rule %d: %w", ruleID, err)
	}
	deals, err := collect(rows, scanDeal)
	if err != nil {
		return nil, fmt.Errorf("scan deals for rule %d: %w", ruleID, err)
	}
	return deals, nil
}

func (s *Store) MarkDealsNotified(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE deals SET notified_at = $1 WHERE id = ANY($2)`, at, ids); err != nil {
		return fmt.Errorf("mark %d deals notified: %w", len(ids), err)
	}
	return nil
}
