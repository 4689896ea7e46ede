package ports

import (
	"context"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

// ProviderPoller is the inbound contract for one provider poll cycle.
type ProviderPoller interface {
	PollAccount(ctx context.Context, accountID string) error
}

// MessageProcessor handles one queued message event end to end: dedup,
// rule evaluation, persistence, classification.
type MessageProcessor interface {
	Process(ctx context.Context, event domain.MessageEvent) error
}

// AttachmentExtractor runs one extraction cycle over all eligible
// attachments and materializes the weekly report.
type AttachmentExtractor interface {
	Run(ctx context.Context) error
}

// RuleService is the thin CRUD surface exposed over HTTP.
type RuleService interface {
	Create(ctx context.Context, rule *domain.TriggerRule) error
	List(ctx context.Context, userID string) ([]domain.TriggerRule, error)
	Update(ctx context.Context, rule *domain.TriggerRule) error
	Delete(ctx context.Context, userID, ruleID string) error
}
