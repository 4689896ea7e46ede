package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) Create(ctx context.Context, rule *domain.TriggerRule) error {
	metadataJSON, err := json.Marshal(rule.Metadata)
	if err != nil {
		return fmt.Errorf("marshal rule metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO trigger_rules (id, user_id, kind, condition, action, active, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		rule.ID, rule.UserID, string(rule.Kind), rule.Condition, string(rule.Action),
		rule.Active, metadataJSON, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trigger rule: %w", err)
	}
	return nil
}

// ListActive returns a user's active rules in insertion order, which is
// the evaluation order; there is no priority field.
func (r *RuleRepository) ListActive(ctx context.Context, userID string) ([]domain.TriggerRule, error) {
	return r.list(ctx, userID, true)
}

func (r *RuleRepository) List(ctx context.Context, userID string) ([]domain.TriggerRule, error) {
	return r.list(ctx, userID, false)
}

func (r *RuleRepository) list(ctx context.Context, userID string, activeOnly bool) ([]domain.TriggerRule, error) {
	query := `
SELECT id, user_id, kind, condition, action, active, metadata, created_at, updated_at
FROM trigger_rules
WHERE user_id = $1
`
	if activeOnly {
		query += "AND active = TRUE\n"
	}
	query += "ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list trigger rules: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TriggerRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trigger rules: %w", err)
	}
	return out, nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *domain.TriggerRule) error {
	metadataJSON, err := json.Marshal(rule.Metadata)
	if err != nil {
		return fmt.Errorf("marshal rule metadata: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE trigger_rules
SET kind = $3, condition = $4, action = $5, active = $6, metadata = $7, updated_at = $8
WHERE user_id = $1 AND id = $2
`,
		rule.UserID, rule.ID, string(rule.Kind), rule.Condition, string(rule.Action),
		rule.Active, metadataJSON, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update trigger rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update trigger rule rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrRuleNotFound, "update trigger rule", sql.ErrNoRows)
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, userID, ruleID string) error {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM trigger_rules WHERE user_id = $1 AND id = $2
`, userID, ruleID)
	if err != nil {
		return fmt.Errorf("delete trigger rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete trigger rule rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrRuleNotFound, "delete trigger rule", sql.ErrNoRows)
	}
	return nil
}

func scanRule(row rowScanner) (domain.TriggerRule, error) {
	var rule domain.TriggerRule
	var kind, action string
	var metadataRaw []byte
	err := row.Scan(
		&rule.ID, &rule.UserID, &kind, &rule.Condition, &action,
		&rule.Active, &metadataRaw, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return domain.TriggerRule{}, fmt.Errorf("scan trigger rule: %w", err)
	}
	rule.Kind = domain.TriggerKind(kind)
	rule.Action = domain.ActionKind(action)
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &rule.Metadata); err != nil {
			return domain.TriggerRule{}, fmt.Errorf("unmarshal rule metadata: %w", err)
		}
	}
	return rule, nil
}
