package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
	"github.com/mailpipe/mailpipe/internal/core/rules"
)

// ProcessMessageUseCase handles one queued message event: dedup check,
// rule evaluation and action dispatch, lazy attachment download,
// classification, and durable persistence. The dedup check happens before
// every other side effect so at-least-once redelivery stays idempotent.
type ProcessMessageUseCase struct {
	messages   ports.MessageRepository
	sync       ports.SyncState
	accounts   ports.AccountRepository
	registry   ports.ProviderRegistry
	engine     *rules.Engine
	dispatcher *rules.Dispatcher
	classifier ports.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

func NewProcessMessageUseCase(
	messages ports.MessageRepository,
	syncState ports.SyncState,
	accounts ports.AccountRepository,
	registry ports.ProviderRegistry,
	engine *rules.Engine,
	dispatcher *rules.Dispatcher,
	classifier ports.Classifier,
	logger *slog.Logger,
) *ProcessMessageUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessMessageUseCase{
		messages:   messages,
		sync:       syncState,
		accounts:   accounts,
		registry:   registry,
		engine:     engine,
		dispatcher: dispatcher,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

func (uc *ProcessMessageUseCase) Process(ctx context.Context, event domain.MessageEvent) error {
	msg := event.Message
	msg.ProviderID = event.ProviderID
	msg.UserID = event.UserID

	seen, err := uc.sync.HasSeen(ctx, msg.ProviderID, msg.ExternalID)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		// Duplicate delivery is expected under at-least-once semantics.
		uc.logger.Debug("message already ingested, skipping",
			"provider_id", msg.ProviderID,
			"external_id", msg.ExternalID,
		)
		return nil
	}

	account, err := uc.accounts.GetByID(ctx, msg.ProviderID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	provider, err := uc.registry.ProviderFor(*account)
	if err != nil {
		return fmt.Errorf("resolve provider adapter: %w", err)
	}

	msg.ID = uuid.NewString()
	msg.ProcessedAt = uc.now().UTC()

	uc.evaluateAndDispatch(ctx, &msg, provider)

	blobs := uc.materializeAttachments(ctx, &msg, provider)

	if err := uc.messages.Create(ctx, &msg, blobs); err != nil {
		if domain.IsKind(err, domain.ErrDuplicateMessage) {
			// A concurrent worker won the insert race; the unique
			// constraint absorbed the duplicate.
			return nil
		}
		return fmt.Errorf("persist message: %w", err)
	}

	uc.logger.Info("message ingested",
		"message_id", msg.ID,
		"external_id", msg.ExternalID,
		"thread_id", msg.ThreadID,
		"attachments", len(msg.Attachments),
	)
	return nil
}

// evaluateAndDispatch runs the trigger rules. A failing rule or action is
// logged and never blocks persistence of the message itself.
func (uc *ProcessMessageUseCase) evaluateAndDispatch(ctx context.Context, msg *domain.Message, provider ports.MailProvider) {
	matched, err := uc.engine.Evaluate(ctx, msg.UserID, msg, uc.now())
	if err != nil {
		uc.logger.Error("rule evaluation failed", "user_id", msg.UserID, "error", err)
		return
	}
	if len(matched) == 0 {
		return
	}
	uc.dispatcher.DispatchAll(ctx, matched, msg, provider)
}

// materializeAttachments downloads attachment bytes and classifies the
// supported content types. A failed download leaves the ref undownloaded;
// a failed classification records the error sentinel. Either way the
// message still persists.
func (uc *ProcessMessageUseCase) materializeAttachments(ctx context.Context, msg *domain.Message, provider ports.MailProvider) map[string][]byte {
	if len(msg.Attachments) == 0 {
		return nil
	}

	blobs := make(map[string][]byte, len(msg.Attachments))
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		att.ID = uuid.NewString()
		att.MessageID = msg.ID

		data, err := provider.GetAttachmentBytes(ctx, msg.ExternalID, att.ExternalID)
		if err != nil {
			uc.logger.Error("attachment download failed",
				"external_id", att.ExternalID,
				"filename", att.Filename,
				"error", err,
			)
			continue
		}
		att.Downloaded = true
		blobs[att.ExternalID] = data

		if !domain.ClassifiableContentTypes[att.ContentType] {
			continue
		}

		result := uc.classifier.Classify(ctx, data, att.ContentType)
		att.DocumentType = result.Type
		att.Confidence = result.Confidence
		att.PageCount = result.PageCount
		att.ClassificationError = result.Error
		att.Entities = result.Entities

		if result.Failed() {
			uc.logger.Warn("classification failed",
				"filename", att.Filename,
				"error", result.Error,
			)
		}
	}
	return blobs
}
