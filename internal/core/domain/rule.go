package domain

import "time"

type TriggerKind string

const (
	TriggerSenderContains   TriggerKind = "sender_contains"
	TriggerSubjectContains  TriggerKind = "subject_contains"
	TriggerBodyContains     TriggerKind = "body_contains"
	TriggerSenderExact      TriggerKind = "sender_exact"
	TriggerSubjectRegex     TriggerKind = "subject_regex"
	TriggerAttachmentExists TriggerKind = "attachment_exists"
	TriggerTimeRange        TriggerKind = "time_range"
)

func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerSenderContains, TriggerSubjectContains, TriggerBodyContains,
		TriggerSenderExact, TriggerSubjectRegex, TriggerAttachmentExists, TriggerTimeRange:
		return true
	}
	return false
}

// ActionKind is the closed set of dispatchable actions. Anything else is
// ErrUnsupportedAction at dispatch time.
type ActionKind string

const (
	ActionLogMessage       ActionKind = "log_message"
	ActionMarkAsRead       ActionKind = "mark_as_read"
	ActionForwardEmail     ActionKind = "forward_email"
	ActionSendNotification ActionKind = "send_notification"
	ActionWebhookCall      ActionKind = "webhook_call"
	ActionCustomScript     ActionKind = "custom_script"
)

// TriggerRule binds a condition to an action for one user. Rules are
// evaluated in insertion order; there is no priority field.
type TriggerRule struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Kind      TriggerKind       `json:"kind"`
	Condition string            `json:"condition"`
	Action    ActionKind        `json:"action"`
	Active    bool              `json:"active"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
