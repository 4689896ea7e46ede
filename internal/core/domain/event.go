package domain

// MessageEvent is the queue envelope for one newly observed message. The
// message is already normalized; attachment bytes are still remote.
type MessageEvent struct {
	UserID     string  `json:"user_id"`
	ProviderID string  `json:"provider_id"`
	Message    Message `json:"message"`
}

// ExtractableAttachment joins an attachment eligible for extraction with
// the message metadata the report keys on.
type ExtractableAttachment struct {
	Attachment   AttachmentRef
	ThreadID     string
	EmailSubject string
	EmailSender  string
}
