package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

type AttachmentRepository struct {
	db *sql.DB
}

func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// ListExtractable selects classified attachments that have stored data
// and were last extracted before the cutoff (or never).
func (r *AttachmentRepository) ListExtractable(ctx context.Context, cutoff time.Time) ([]domain.ExtractableAttachment, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT a.id, a.external_id, a.filename, a.content_type, a.size,
	a.document_type, a.confidence, a.last_extracted_at,
	m.thread_id, m.subject, m.sender
FROM attachments a
JOIN messages m ON m.id = a.message_id
WHERE a.document_type IS NOT NULL
	AND a.document_type <> ''
	AND a.data IS NOT NULL
	AND (a.last_extracted_at IS NULL OR a.last_extracted_at < $1)
ORDER BY a.created_at
`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list extractable attachments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractableAttachment, 0)
	for rows.Next() {
		var cand domain.ExtractableAttachment
		var threadID, subject, sender sql.NullString
		err := rows.Scan(
			&cand.Attachment.ID, &cand.Attachment.ExternalID, &cand.Attachment.Filename,
			&cand.Attachment.ContentType, &cand.Attachment.Size,
			&cand.Attachment.DocumentType, &cand.Attachment.Confidence, &cand.Attachment.LastExtractedAt,
			&threadID, &subject, &sender,
		)
		if err != nil {
			return nil, fmt.Errorf("scan extractable attachment: %w", err)
		}
		cand.ThreadID = threadID.String
		cand.EmailSubject = subject.String
		cand.EmailSender = sender.String
		if cand.ThreadID == "" {
			cand.ThreadID = "unknown"
		}
		out = append(out, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractable attachments: %w", err)
	}
	return out, nil
}

func (r *AttachmentRepository) GetBlob(ctx context.Context, attachmentID string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM attachments WHERE id = $1`, attachmentID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("attachment not found: %s", attachmentID)
		}
		return nil, fmt.Errorf("get attachment blob: %w", err)
	}
	return data, nil
}

// MarkExtractedBatch stamps last_extracted_at for all ids in a single
// transaction, so the cooldown bookkeeping of one cycle is all-or-nothing.
func (r *AttachmentRepository) MarkExtractedBatch(ctx context.Context, attachmentIDs []string, extractedAt time.Time) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark-extracted tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
UPDATE attachments
SET last_extracted_at = $2
WHERE id = ANY($1)
`, attachmentIDs, extractedAt)
	if err != nil {
		return fmt.Errorf("mark attachments extracted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark-extracted tx: %w", err)
	}
	return nil
}
