package postgres

import (
	"context"
	"fmt"

	"github.com/Strob0t/DealWatch/internal/domain/alert"
)

const alertColumns = `id, user_id, name, type, origin, destination, min_discount,
	max_price::text, is_active, created_at, updated_at`

func scanAlert(row scannable) (alert.PushAlert, error) {
	var (
		a                      alert.PushAlert
		alertType              string
		origin, dest, maxPrice *string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &alertType, &origin, &dest, &a.MinDiscount,
		&maxPrice, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.Type = alert.Type(alertType)
	a.Origin = deref(origin)
	a.Destination = deref(dest)
	if maxPrice != nil {
		p, err := parseNumeric(*maxPrice, "max_price")
		if err != nil {
			return a, err
		}
		a.MaxPrice = &p
	}
	return a, nil
}

// maxPriceParam maps an optional ceiling to a nullable NUMERIC parameter.
func maxPriceParam(a *alert.PushAlert) *string {
	if a.MaxPrice == nil {
		return nil
	}
	v := numericText(*a.MaxPrice)
	return &v
}

func (s *Store) ListAlerts(ctx context.Context, userID int64) ([]alert.PushAlert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM push_alerts WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts, err := collect(rows, scanAlert)
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return alerts, nil
}

func (s *Store) ListActiveAlerts(ctx context.Context) ([]alert.PushAlert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM push_alerts WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	alerts, err := collect(rows, scanAlert)
	if err != nil {
		return nil, fmt.Errorf("scan active alerts: %w", err)
	}
	return alerts, nil
}

func (s *Store) GetAlert(ctx context.Context, id int64) (*alert.PushAlert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM push_alerts WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get alert %d", id)
	}
	return &a, nil
}

func (s *Store) CreateAlert(ctx context.Context, in *alert.PushAlert) (*alert.PushAlert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`INSERT INTO push_alerts (user_id, name, type, origin, destination, min_discount, max_price, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
		 RETURNING `+alertColumns,
		in.UserID, in.Name, string(in.Type), nullIfEmpty(in.Origin), nullIfEmpty(in.Destination),
		in.MinDiscount, maxPriceParam(in), in.IsActive))
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return &a, nil
}

func (s *Store) UpdateAlert(ctx context.Context, in *alert.PushAlert) (*alert.PushAlert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`UPDATE push_alerts SET name = $2, type = $3, origin = $4, destination = $5,
			min_discount = $6, max_price = $7::numeric, is_active = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING `+alertColumns,
		in.ID, in.Name, string(in.Type), nullIfEmpty(in.Origin), nullIfEmpty(in.Destination),
		in.MinDiscount, maxPriceParam(in), in.IsActive))
	if err != nil {
		return nil, notFoundWrap(err, "update alert %d", in.ID)
	}
	return &a, nil
}

func (s *Store) DeleteAlert(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_alerts WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete alert %d", id)
}

func (s *Store) SetAlertActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE push_alerts SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	return execExpectOne(tag, err, "toggle alert %d", id)
}
