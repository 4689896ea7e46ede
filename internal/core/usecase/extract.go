package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
	"github.com/mailpipe/mailpipe/internal/core/report"
)

// extractionCooldown suppresses re-extraction of an attachment that was
// attempted within the window, successful or not.
const extractionCooldown = 7 * 24 * time.Hour

// ExtractAttachmentsUseCase runs one extraction cycle: select classified
// attachments not extracted within the cooldown, group them by document
// type, call the type's extraction processor, aggregate entity values per
// conversation thread, and materialize the aggregate into the weekly
// report. Extraction bookkeeping commits in one transaction, decoupled
// from report writing.
type ExtractAttachmentsUseCase struct {
	attachments ports.AttachmentRepository
	classifier  ports.Classifier
	processors  map[string]string // document type -> extraction processor id
	merger      *report.Merger
	logger      *slog.Logger
	now         func() time.Time
}

func NewExtractAttachmentsUseCase(
	attachments ports.AttachmentRepository,
	classifier ports.Classifier,
	processors map[string]string,
	merger *report.Merger,
	logger *slog.Logger,
) *ExtractAttachmentsUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractAttachmentsUseCase{
		attachments: attachments,
		classifier:  classifier,
		processors:  processors,
		merger:      merger,
		logger:      logger,
		now:         time.Now,
	}
}

func (uc *ExtractAttachmentsUseCase) Run(ctx context.Context) error {
	runStart := uc.now()
	cutoff := runStart.Add(-extractionCooldown)

	candidates, err := uc.attachments.ListExtractable(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list extractable attachments: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}
	uc.logger.Info("extraction cycle started", "candidates", len(candidates))

	byType := uc.groupSupported(candidates)

	batch := report.Batch{}
	processed := make([]string, 0, len(candidates))

	// Unsupported document types are marked processed without extraction
	// so they never retry unboundedly.
	for _, cand := range candidates {
		if _, ok := uc.processors[cand.Attachment.DocumentType]; !ok {
			uc.logger.Warn("no extraction processor for document type, marking processed",
				"document_type", cand.Attachment.DocumentType,
				"filename", cand.Attachment.Filename,
			)
			processed = append(processed, cand.Attachment.ID)
		}
	}

	for docType, group := range byType {
		processorID := uc.processors[docType]
		for _, cand := range group {
			uc.extractOne(ctx, docType, processorID, cand, batch)
			// Extraction state advances on failure too: the cooldown takes
			// precedence over forcing a success.
			processed = append(processed, cand.Attachment.ID)
		}
	}

	if err := uc.attachments.MarkExtractedBatch(ctx, processed, runStart); err != nil {
		return fmt.Errorf("mark extracted batch: %w", err)
	}

	// Report materialization is independently recoverable: the extraction
	// bookkeeping above stays committed even if this write fails.
	if err := uc.merger.MergeBatch(ctx, batch, runStart); err != nil {
		uc.logger.Error("report materialization failed", "threads", len(batch), "error", err)
		return fmt.Errorf("merge extraction batch into report: %w", err)
	}

	uc.logger.Info("extraction cycle finished",
		"processed", len(processed),
		"threads", len(batch),
	)
	return nil
}

func (uc *ExtractAttachmentsUseCase) groupSupported(candidates []domain.ExtractableAttachment) map[string][]domain.ExtractableAttachment {
	byType := make(map[string][]domain.ExtractableAttachment)
	for _, cand := range candidates {
		docType := cand.Attachment.DocumentType
		if _, ok := uc.processors[docType]; !ok {
			continue
		}
		byType[docType] = append(byType[docType], cand)
	}
	return byType
}

// extractOne calls the extraction processor for one attachment and folds
// any returned entities into the thread aggregate, namespaced by document
// type so same-named entities from different types never collide.
func (uc *ExtractAttachmentsUseCase) extractOne(ctx context.Context, docType, processorID string, cand domain.ExtractableAttachment, batch report.Batch) {
	data, err := uc.attachments.GetBlob(ctx, cand.Attachment.ID)
	if err != nil {
		uc.logger.Error("attachment blob unavailable",
			"attachment_id", cand.Attachment.ID,
			"filename", cand.Attachment.Filename,
			"error", err,
		)
		return
	}

	result, err := uc.classifier.Extract(ctx, data, cand.Attachment.ContentType, processorID)
	if err != nil {
		uc.logger.Error("extraction call failed",
			"attachment_id", cand.Attachment.ID,
			"document_type", docType,
			"processor_id", processorID,
			"error", err,
		)
		return
	}
	if result.Error != "" || len(result.Entities) == 0 {
		uc.logger.Warn("extraction returned no data",
			"attachment_id", cand.Attachment.ID,
			"document_type", docType,
			"error", result.Error,
		)
		return
	}

	namespaced := make(map[string]string, len(result.Entities))
	for name, value := range result.Entities {
		namespaced[fmt.Sprintf("%s_%s", docType, name)] = value
	}
	batch.Add(cand.ThreadID, cand.EmailSubject, cand.EmailSender, namespaced)
}
