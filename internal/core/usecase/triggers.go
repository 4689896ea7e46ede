package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
)

// TriggerRuleUseCase is the thin CRUD surface over the rule store.
type TriggerRuleUseCase struct {
	store ports.RuleStore
	now   func() time.Time
}

func NewTriggerRuleUseCase(store ports.RuleStore) *TriggerRuleUseCase {
	return &TriggerRuleUseCase{store: store, now: time.Now}
}

func (uc *TriggerRuleUseCase) Create(ctx context.Context, rule *domain.TriggerRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	rule.ID = uuid.NewString()
	now := uc.now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := uc.store.Create(ctx, rule); err != nil {
		return fmt.Errorf("create trigger rule: %w", err)
	}
	return nil
}

func (uc *TriggerRuleUseCase) List(ctx context.Context, userID string) ([]domain.TriggerRule, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list trigger rules", fmt.Errorf("user id is required"))
	}
	rules, err := uc.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list trigger rules: %w", err)
	}
	return rules, nil
}

func (uc *TriggerRuleUseCase) Update(ctx context.Context, rule *domain.TriggerRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "update trigger rule", fmt.Errorf("rule id is required"))
	}
	rule.UpdatedAt = uc.now().UTC()
	if err := uc.store.Update(ctx, rule); err != nil {
		return fmt.Errorf("update trigger rule: %w", err)
	}
	return nil
}

func (uc *TriggerRuleUseCase) Delete(ctx context.Context, userID, ruleID string) error {
	if userID == "" || ruleID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete trigger rule", fmt.Errorf("user id and rule id are required"))
	}
	if err := uc.store.Delete(ctx, userID, ruleID); err != nil {
		return fmt.Errorf("delete trigger rule: %w", err)
	}
	return nil
}

func validateRule(rule *domain.TriggerRule) error {
	if rule == nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate rule", fmt.Errorf("rule is nil"))
	}
	if strings.TrimSpace(rule.UserID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate rule", fmt.Errorf("user id is required"))
	}
	if !rule.Kind.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "validate rule", fmt.Errorf("unknown trigger kind %q", rule.Kind))
	}
	if rule.Action == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate rule", fmt.Errorf("action is required"))
	}
	return nil
}
