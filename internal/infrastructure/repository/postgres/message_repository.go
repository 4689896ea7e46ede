package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

const pgUniqueViolation = "23505"

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists the message, its attachment rows, and the downloaded
// blobs in one transaction. A (external_id, provider_id) collision maps
// to domain.ErrDuplicateMessage so redelivered messages are absorbed.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message, blobs map[string][]byte) error {
	recipientsJSON, err := json.Marshal(msg.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	labelsJSON, err := json.Marshal(msg.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO messages (
	id, external_id, provider_id, user_id, thread_id, sender, recipients,
	subject, body, html_body, is_read, is_important, labels, received_at, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		msg.ID, msg.ExternalID, msg.ProviderID, msg.UserID, msg.ThreadID, msg.Sender, recipientsJSON,
		msg.Subject, msg.Body, msg.HTMLBody, msg.IsRead, msg.IsImportant, labelsJSON, msg.ReceivedAt, msg.ProcessedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.WrapError(domain.ErrDuplicateMessage, "insert message", err)
		}
		return fmt.Errorf("insert message: %w", err)
	}

	for i := range msg.Attachments {
		att := msg.Attachments[i]
		entitiesJSON, err := json.Marshal(att.Entities)
		if err != nil {
			return fmt.Errorf("marshal entities: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO attachments (
	id, message_id, external_id, filename, content_type, size, inline, downloaded,
	data, document_type, confidence, page_count, classification_error, entities, last_extracted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
			att.ID, msg.ID, att.ExternalID, att.Filename, att.ContentType, att.Size, att.Inline, att.Downloaded,
			blobs[att.ExternalID], att.DocumentType, att.Confidence, att.PageCount, att.ClassificationError,
			entitiesJSON, att.LastExtractedAt,
		)
		if err != nil {
			return fmt.Errorf("insert attachment %s: %w", att.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message tx: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, external_id, provider_id, user_id, thread_id, sender, recipients,
	subject, body, html_body, is_read, is_important, labels, received_at, processed_at
FROM messages
WHERE id = $1
`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrMessageNotFound, "get message", err)
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}

	attachments, err := r.listAttachments(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	msg.Attachments = attachments
	return msg, nil
}

func (r *MessageRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, external_id, provider_id, user_id, thread_id, sender, recipients,
	subject, body, html_body, is_read, is_important, labels, received_at, processed_at
FROM messages
WHERE user_id = $1
ORDER BY processed_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) listAttachments(ctx context.Context, messageID string) ([]domain.AttachmentRef, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, message_id, external_id, filename, content_type, size, inline, downloaded,
	document_type, confidence, page_count, classification_error, entities, last_extracted_at
FROM attachments
WHERE message_id = $1
ORDER BY created_at
`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AttachmentRef, 0)
	for rows.Next() {
		var att domain.AttachmentRef
		var docType, classErr sql.NullString
		var entitiesRaw []byte
		err := rows.Scan(
			&att.ID, &att.MessageID, &att.ExternalID, &att.Filename, &att.ContentType, &att.Size,
			&att.Inline, &att.Downloaded, &docType, &att.Confidence, &att.PageCount, &classErr,
			&entitiesRaw, &att.LastExtractedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		att.DocumentType = docType.String
		att.ClassificationError = classErr.String
		if len(entitiesRaw) > 0 {
			if err := json.Unmarshal(entitiesRaw, &att.Entities); err != nil {
				return nil, fmt.Errorf("unmarshal entities: %w", err)
			}
		}
		out = append(out, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var threadID, subject, body, htmlBody sql.NullString
	var recipientsRaw, labelsRaw []byte

	err := row.Scan(
		&msg.ID, &msg.ExternalID, &msg.ProviderID, &msg.UserID, &threadID, &msg.Sender, &recipientsRaw,
		&subject, &body, &htmlBody, &msg.IsRead, &msg.IsImportant, &labelsRaw, &msg.ReceivedAt, &msg.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.ThreadID = threadID.String
	msg.Subject = subject.String
	msg.Body = body.String
	msg.HTMLBody = htmlBody.String
	if len(recipientsRaw) > 0 {
		if err := json.Unmarshal(recipientsRaw, &msg.Recipients); err != nil {
			return nil, fmt.Errorf("unmarshal recipients: %w", err)
		}
	}
	if len(labelsRaw) > 0 {
		if err := json.Unmarshal(labelsRaw, &msg.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	return &msg, nil
}
