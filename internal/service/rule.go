// Package service implements business logic on top of ports.
package service

import (
	"context"

	"github.com/Strob0t/DealWatch/internal/domain/rule"
	"github.com/Strob0t/DealWatch/internal/port/database"
)

// RuleService handles monitoring rule business logic. Every operation is
// scoped to the calling user.
type RuleService struct {
	store database.RuleStore
}

// NewRuleService creates a new RuleService.
func NewRuleService(store database.RuleStore) *RuleService {
	return &RuleService{store: store}
}

// List returns the user's rules, newest first.
func (s *RuleService) List(ctx context.Context, userID int64) ([]rule.Rule, error) {
	return s.store.ListRules(ctx, userID)
}

// Get returns one of the user's rules.
func (s *RuleService) Get(ctx context.Context, id, userID int64) (*rule.Rule, error) {
	return s.store.GetRule(ctx, id, userID)
}

// Create validates the request and stores a new rule owned by userID.
func (s *RuleService) Create(ctx context.Context, userID int64, req *rule.CreateRequest) (*rule.Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := req.ToRule(userID)
	return s.store.CreateRule(ctx, &r)
}

// Update applies a partial update to one of the user's rules.
func (s *RuleService) Update(ctx context.Context, id, userID int64, req *rule.UpdateRequest) (*rule.Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r, err := s.store.GetRule(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(r); err != nil {
		return nil, err
	}
	return s.store.UpdateRule(ctx, r)
}

// Delete removes one of the user's rules and its deal history.
func (s *RuleService) Delete(ctx context.Context, id, userID int64) error {
	return s.store.DeleteRule(ctx, id, userID)
}

// Toggle sets the rule's active flag, or flips it when active is nil.
func (s *RuleService) Toggle(ctx context.Context, id, userID int64, active *bool) (*rule.Rule, error) {
	r, err := s.store.GetRule(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	next := !r.IsActive
	if active != nil {
		next = *active
	}
	if err := s.store.SetRuleActive(ctx, id, userID, next); err != nil {
		return nil, err
	}
	r.IsActive = next
	return r, nil
}
