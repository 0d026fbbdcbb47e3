package service

import (
	"context"

	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/port/database"
)

// DefaultDealLimit caps the deal history when the caller gives no limit.
const DefaultDealLimit = 50

// maxDealLimit bounds caller-supplied limits.
const maxDealLimit = 500

// DealService reads the deal history.
type DealService struct {
	deals database.DealStore
	rules database.RuleStore
}

// NewDealService creates a new DealService.
func NewDealService(deals database.DealStore, rules database.RuleStore) *DealService {
	return &DealService{deals: deals, rules: rules}
}

// ListByUser returns the user's most recent deals.
func (s *DealService) ListByUser(ctx context.Context, userID int64, limit int) ([]deal.Deal, error) {
	switch {
	case limit <= 0:
		limit = DefaultDealLimit
	case limit > maxDealLimit:
		limit = maxDealLimit
	}
	return s.deals.ListDealsByUser(ctx, userID, limit)
}

// ListByRule returns the deals found for one of the user's rules. A rule the
// user does not own is domain.ErrNotFound.
func (s *DealService) ListByRule(ctx context.Context, ruleID, userID int64) ([]deal.Deal, error) {
	if _, err := s.rules.GetRule(ctx, ruleID, userID); err != nil {
		return nil, err
	}
	return s.deals.ListDealsByRule(ctx, ruleID, userID)
}
