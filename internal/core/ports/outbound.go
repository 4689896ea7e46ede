package ports

import (
	"context"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

// MailProvider is one vendor's mailbox capability. Implementations own
// their credential and connection state; instances are never shared
// across accounts.
type MailProvider interface {
	ListNewSince(ctx context.Context, since time.Time) ([]domain.Message, error)
	GetMessage(ctx context.Context, externalID string) (*domain.Message, error)
	GetAttachmentBytes(ctx context.Context, messageExternalID, attachmentExternalID string) ([]byte, error)
	MarkRead(ctx context.Context, externalID string) error
}

// ProviderRegistry resolves a MailProvider for a connected account.
type ProviderRegistry interface {
	ProviderFor(account domain.ProviderAccount) (MailProvider, error)
}

// Classifier is the document classification/extraction service, consumed
// as an opaque remote call.
type Classifier interface {
	Classify(ctx context.Context, content []byte, mimeType string) domain.ClassificationResult
	Extract(ctx context.Context, content []byte, mimeType, processorID string) (domain.ExtractionResult, error)
}

// MessageRepository persists normalized messages with their attachments
// and classification metadata.
type MessageRepository interface {
	// Create inserts the message, its attachment rows, and the fetched
	// attachment blobs (keyed by attachment external id) in one
	// transaction. A (external_id, provider_id) collision returns
	// domain.ErrDuplicateMessage.
	Create(ctx context.Context, msg *domain.Message, blobs map[string][]byte) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Message, error)
}

// AttachmentRepository serves the extraction cycle.
type AttachmentRepository interface {
	// ListExtractable returns classified attachments with stored data whose
	// last_extracted_at is NULL or before the cutoff.
	ListExtractable(ctx context.Context, cutoff time.Time) ([]domain.ExtractableAttachment, error)
	GetBlob(ctx context.Context, attachmentID string) ([]byte, error)
	// MarkExtractedBatch stamps last_extracted_at for all ids in one transaction.
	MarkExtractedBatch(ctx context.Context, attachmentIDs []string, extractedAt time.Time) error
}

// SyncState is the dedup and cursor store, partitioned by provider.
type SyncState interface {
	HasSeen(ctx context.Context, providerID, externalID string) (bool, error)
	GetCursor(ctx context.Context, providerID string) (*time.Time, error)
	AdvanceCursor(ctx context.Context, providerID string, t time.Time) error
}

// AccountRepository lists connected mailbox accounts.
type AccountRepository interface {
	ListActive(ctx context.Context) ([]domain.ProviderAccount, error)
	GetByID(ctx context.Context, id string) (*domain.ProviderAccount, error)
}

// RuleStore persists trigger rules. The engine reloads the active set per
// evaluation, so mutations become visible on the next cycle.
type RuleStore interface {
	Create(ctx context.Context, rule *domain.TriggerRule) error
	ListActive(ctx context.Context, userID string) ([]domain.TriggerRule, error)
	List(ctx context.Context, userID string) ([]domain.TriggerRule, error)
	Update(ctx context.Context, rule *domain.TriggerRule) error
	Delete(ctx context.Context, userID, ruleID string) error
}

// MessageQueue carries normalized message events from poll cycles to the
// processing workers.
type MessageQueue interface {
	PublishMessageFound(ctx context.Context, event domain.MessageEvent) error
	SubscribeMessageFound(ctx context.Context, handler func(context.Context, domain.MessageEvent) error) error
}

// NotificationSender delivers send_notification actions.
type NotificationSender interface {
	Send(ctx context.Context, recipient, kind, text string) error
}

// WebhookCaller posts trigger payloads to webhook_call URLs.
type WebhookCaller interface {
	Call(ctx context.Context, url string, payload any) error
}
