package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
)

// Dispatcher executes the actions of matched rules. Each invocation is
// isolated: a failing handler is reported through the returned slice and
// never prevents dispatch of subsequent rules for the same message.
type Dispatcher struct {
	notifier ports.NotificationSender
	webhook  ports.WebhookCaller
	logger   *slog.Logger
}

func NewDispatcher(notifier ports.NotificationSender, webhook ports.WebhookCaller, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notifier: notifier, webhook: webhook, logger: logger}
}

// DispatchResult records the outcome of one rule's action.
type DispatchResult struct {
	RuleID string
	Action domain.ActionKind
	Err    error
}

// DispatchAll runs every matched rule's action against the message. The
// provider is the adapter for the account that delivered the message; it
// serves mark_as_read.
func (d *Dispatcher) DispatchAll(ctx context.Context, matched []domain.TriggerRule, msg *domain.Message, provider ports.MailProvider) []DispatchResult {
	results := make([]DispatchResult, 0, len(matched))
	for _, rule := range matched {
		err := d.dispatch(ctx, rule, msg, provider)
		if err != nil {
			d.logger.Error("action dispatch failed",
				"rule_id", rule.ID,
				"action", string(rule.Action),
				"message_id", msg.ExternalID,
				"error", err,
			)
		}
		results = append(results, DispatchResult{RuleID: rule.ID, Action: rule.Action, Err: err})
	}
	return results
}

func (d *Dispatcher) dispatch(ctx context.Context, rule domain.TriggerRule, msg *domain.Message, provider ports.MailProvider) error {
	switch rule.Action {
	case domain.ActionLogMessage:
		d.logger.Info("trigger matched",
			"rule_id", rule.ID,
			"sender", msg.Sender,
			"subject", msg.Subject,
			"received_at", msg.ReceivedAt,
		)
		return nil

	case domain.ActionMarkAsRead:
		if provider == nil {
			return errors.New("mark as read: no provider adapter for message")
		}
		if err := provider.MarkRead(ctx, msg.ExternalID); err != nil {
			return fmt.Errorf("mark as read: %w", err)
		}
		return nil

	case domain.ActionForwardEmail:
		forwardTo, err := requireMeta(rule, "forward_to")
		if err != nil {
			return err
		}
		d.logger.Info("forwarding message",
			"rule_id", rule.ID,
			"message_id", msg.ExternalID,
			"forward_to", forwardTo,
		)
		return nil

	case domain.ActionSendNotification:
		if d.notifier == nil {
			return errors.New("send notification: no sender configured")
		}
		recipient, err := requireMeta(rule, "recipient")
		if err != nil {
			return err
		}
		kind := rule.Metadata["type"]
		if kind == "" {
			kind = "email"
		}
		text := fmt.Sprintf("New email from %s: %s", msg.Sender, msg.Subject)
		if err := d.notifier.Send(ctx, recipient, kind, text); err != nil {
			return fmt.Errorf("send notification: %w", err)
		}
		return nil

	case domain.ActionWebhookCall:
		url, err := requireMeta(rule, "url")
		if err != nil {
			return err
		}
		payload := map[string]any{
			"rule_id":    rule.ID,
			"message_id": msg.ExternalID,
			"thread_id":  msg.ThreadID,
			"sender":     msg.Sender,
			"subject":    msg.Subject,
		}
		if err := d.webhook.Call(ctx, url, payload); err != nil {
			return fmt.Errorf("webhook call: %w", err)
		}
		return nil

	case domain.ActionCustomScript:
		scriptPath, err := requireMeta(rule, "script_path")
		if err != nil {
			return err
		}
		// Script execution stays outside this process; the dispatch is the
		// audit record.
		d.logger.Info("custom script requested",
			"rule_id", rule.ID,
			"script_path", scriptPath,
		)
		return nil

	default:
		return domain.WrapError(domain.ErrUnsupportedAction, "dispatch action",
			fmt.Errorf("action %q", rule.Action))
	}
}

func requireMeta(rule domain.TriggerRule, key string) (string, error) {
	v := rule.Metadata[key]
	if v == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "dispatch action",
			fmt.Errorf("rule %s: metadata %q is required for %s", rule.ID, key, rule.Action))
	}
	return v, nil
}
