// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/DealWatch/internal/domain/alert"
	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/joblog"
	"github.com/Strob0t/DealWatch/internal/domain/rule"
)

// RuleStore persists monitoring rules. Lookups taking a userID only see that
// user's rules; anything else is domain.ErrNotFound.
type RuleStore interface {
	ListRules(ctx context.Context, userID int64) ([]rule.Rule, error)
	ListActiveRules(ctx context.Context) ([]rule.Rule, error)
	GetRule(ctx context.Context, id, userID int64) (*rule.Rule, error)
	CreateRule(ctx context.Context, r *rule.Rule) (*rule.Rule, error)
	UpdateRule(ctx context.Context, r *rule.Rule) (*rule.Rule, error)
	DeleteRule(ctx context.Context, id, userID int64) error
	SetRuleActive(ctx context.Context, id, userID int64, active bool) error
}

// DealStore persists the deal history.
type DealStore interface {
	CreateDeal(ctx context.Context, f *deal.Found) (*deal.Deal, error)
	ListDealsByUser(ctx context.Context, userID int64, limit int) ([]deal.Deal, error)
	ListDealsByRule(ctx context.Context, ruleID, userID int64) ([]deal.Deal, error)
	MarkDealsNotified(ctx context.Context, ids []int64, at time.Time) error
}

// AlertStore persists push alerts. Ownership is enforced by the caller.
type AlertStore interface {
	ListAlerts(ctx context.Context, userID int64) ([]alert.PushAlert, error)
	ListActiveAlerts(ctx context.Context) ([]alert.PushAlert, error)
	GetAlert(ctx context.Context, id int64) (*alert.PushAlert, error)
	CreateAlert(ctx context.Context, a *alert.PushAlert) (*alert.PushAlert, error)
	UpdateAlert(ctx context.Context, a *alert.PushAlert) (*alert.PushAlert, error)
	DeleteAlert(ctx context.Context, id int64) error
	SetAlertActive(ctx context.Context, id int64, active bool) error
}

// JobLogStore persists job execution logs.
type JobLogStore interface {
	CreateJobLog(ctx context.Context, jobType string) (*joblog.JobLog, error)
	CompleteJobLog(ctx context.Context, id int64, c joblog.Completion) error
	ListJobLogs(ctx context.Context, limit int) ([]joblog.JobLog, error)
	LastJobStart(ctx context.Context, jobType string) (time.Time, error)
}

// Store is the port interface for database operations.
type Store interface {
	RuleStore
	DealStore
	AlertStore
	JobLogStore
}
