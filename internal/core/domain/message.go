package domain

import "time"

type ProviderKind string

const (
	ProviderGmail   ProviderKind = "gmail"
	ProviderOutlook ProviderKind = "outlook"
)

func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderGmail, ProviderOutlook:
		return true
	}
	return false
}

// ProviderAccount is one connected mailbox. Tokens are managed by the
// OAuth layer; this system only carries them to the provider adapter.
type ProviderAccount struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Kind         ProviderKind `json:"kind"`
	EmailAddress string       `json:"email_address"`
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	Active       bool         `json:"active"`
	LastSync     *time.Time   `json:"last_sync,omitempty"`
}

// Message is the canonical message shape, normalized from whatever the
// vendor returned. (ExternalID, ProviderID) is unique system-wide.
type Message struct {
	ID          string          `json:"id"`
	ExternalID  string          `json:"external_id"`
	ProviderID  string          `json:"provider_id"`
	UserID      string          `json:"user_id"`
	ThreadID    string          `json:"thread_id"`
	Sender      string          `json:"sender"`
	Recipients  []string        `json:"recipients"`
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	HTMLBody    string          `json:"html_body,omitempty"`
	IsRead      bool            `json:"is_read"`
	IsImportant bool            `json:"is_important"`
	Labels      []string        `json:"labels,omitempty"`
	ReceivedAt  *time.Time      `json:"received_at,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}

func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// AttachmentRef describes one attachment owned by a message. Bytes are
// fetched lazily through the provider adapter and are never part of the
// normalized message.
type AttachmentRef struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	ExternalID  string `json:"external_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Inline      bool   `json:"inline"`
	Downloaded  bool   `json:"downloaded"`

	DocumentType        string     `json:"document_type,omitempty"`
	Confidence          float64    `json:"confidence,omitempty"`
	PageCount           int        `json:"page_count,omitempty"`
	ClassificationError string     `json:"classification_error,omitempty"`
	Entities            []Entity   `json:"entities,omitempty"`
	LastExtractedAt     *time.Time `json:"last_extracted_at,omitempty"`
}
