package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/DealWatch/internal/domain/rule"
)

const ruleColumns = `id, user_id, name, type, origin, destination, departure_date, return_date,
	min_discount, notification_type, notification_email, notification_webhook,
	is_active, created_at, updated_at`

func scanRule(row scannable) (rule.Rule, error) {
	var (
		r                            rule.Rule
		origin, dest, email, webhook *string
		offerType, notifyType        string
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &offerType, &origin, &dest,
		&r.DepartureDate, &r.ReturnDate, &r.MinDiscount, &notifyType,
		&email, &webhook, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Type = rule.OfferType(offerType)
	r.NotificationType = rule.NotificationType(notifyType)
	r.Origin = deref(origin)
	r.Destination = deref(dest)
	r.NotificationEmail = deref(email)
	r.NotificationWebhook = deref(webhook)
	return r, nil
}

func (s *Store) ListRules(ctx context.Context, userID int64) ([]rule.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM monitoring_rules WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	rules, err := collect(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("scan rules: %w", err)
	}
	return rules, nil
}

func (s *Store) ListActiveRules(ctx context.Context) ([]rule.Rule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM monitoring_rules WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	rules, err := collect(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("scan active rules: %w", err)
	}
	return rules, nil
}

func (s *Store) GetRule(ctx context.Context, id, userID int64) (*rule.Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM monitoring_rules WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFoundWrap(err, "get rule %d", id)
	}
	return &r, nil
}

func (s *Store) CreateRule(ctx context.Context, in *rule.Rule) (*rule.Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx,
		`INSERT INTO monitoring_rules (user_id, name, type, origin, destination, departure_date, return_date,
			min_discount, notification_type, notification_email, notification_webhook, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+ruleColumns,
		in.UserID, in.Name, string(in.Type), nullIfEmpty(in.Origin), nullIfEmpty(in.Destination),
		in.DepartureDate, in.ReturnDate, in.MinDiscount, string(in.NotificationType),
		nullIfEmpty(in.NotificationEmail), nullIfEmpty(in.NotificationWebhook), in.IsActive))
	if err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	return &r, nil
}

func (s *Store) UpdateRule(ctx context.Context, in *rule.Rule) (*rule.Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx,
		`UPDATE monitoring_rules SET name = $3, type = $4, origin = $5, destination = $6,
			departure_date = $7, return_date = $8, min_discount = $9, notification_type = $10,
			notification_email = $11, notification_webhook = $12, is_active = $13, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+ruleColumns,
		in.ID, in.UserID, in.Name, string(in.Type), nullIfEmpty(in.Origin), nullIfEmpty(in.Destination),
		in.DepartureDate, in.ReturnDate, in.MinDiscount, string(in.NotificationType),
		nullIfEmpty(in.NotificationEmail), nullIfEmpty(in.NotificationWebhook), in.IsActive))
	if err != nil {
		return nil, notFoundWrap(err, "update rule %d", in.ID)
	}
	return &r, nil
}

func (s *Store) DeleteRule(ctx context.Context, id, userID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitoring_rules WHERE id = $1 AND user_id = $2`, id, userID)
	return execExpectOne(tag, err, "delete rule %d", id)
}

func (s *Store) SetRuleActive(ctx context.Context, id, userID int64, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitoring_rules SET is_active = $3, updated_at = now() WHERE id = $1 AND user_id = $2`,
		id, userID, active)
	return execExpectOne(tag, err, "toggle rule %d", id)
}
