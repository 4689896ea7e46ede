package rules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/core/ports"
)

// Engine evaluates a user's active trigger rules against one normalized
// message. The rule set is reloaded from the store on every call, so rule
// mutations become visible on the next evaluation cycle and never mid-cycle.
type Engine struct {
	store  ports.RuleStore
	logger *slog.Logger
}

func NewEngine(store ports.RuleStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Evaluate returns the rules that match, in insertion order. A rule whose
// condition is malformed or whose kind is unknown fails closed; the rest
// of the set is unaffected.
func (e *Engine) Evaluate(ctx context.Context, userID string, msg *domain.Message, now time.Time) ([]domain.TriggerRule, error) {
	active, err := e.store.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	var matched []domain.TriggerRule
	for _, rule := range active {
		ok, err := Matches(rule, msg, now)
		if err != nil {
			e.logger.Warn("rule evaluation failed closed",
				"rule_id", rule.ID,
				"kind", string(rule.Kind),
				"error", err,
			)
			continue
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// Matches reports whether a single rule matches the message at the given
// wall-clock instant.
func Matches(rule domain.TriggerRule, msg *domain.Message, now time.Time) (bool, error) {
	switch rule.Kind {
	case domain.TriggerSenderContains:
		return containsFold(msg.Sender, rule.Condition), nil

	case domain.TriggerSubjectContains:
		return containsFold(msg.Subject, rule.Condition), nil

	case domain.TriggerBodyContains:
		return containsFold(msg.Body+msg.HTMLBody, rule.Condition), nil

	case domain.TriggerSenderExact:
		return strings.EqualFold(msg.Sender, rule.Condition), nil

	case domain.TriggerSubjectRegex:
		pattern, err := regexp.Compile("(?i)" + rule.Condition)
		if err != nil {
			return false, fmt.Errorf("compile subject regex: %w", err)
		}
		return pattern.MatchString(msg.Subject), nil

	case domain.TriggerAttachmentExists:
		return msg.HasAttachments(), nil

	case domain.TriggerTimeRange:
		return matchesTimeRange(rule.Condition, now)

	default:
		return false, domain.WrapError(domain.ErrInvalidInput, "evaluate rule",
			fmt.Errorf("unknown trigger kind %q", rule.Kind))
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// matchesTimeRange checks a "HH:MM-HH:MM" inclusive range against the
// time of day. A range with start after end (an overnight range such as
// "18:00-08:00") never matches: the comparison is a plain inclusive
// interval test, kept deliberately without wraparound handling.
func matchesTimeRange(condition string, now time.Time) (bool, error) {
	start, end, err := parseTimeRange(condition)
	if err != nil {
		return false, err
	}
	current := now.Hour()*60 + now.Minute()
	return start <= current && current <= end, nil
}

func parseTimeRange(condition string) (startMin, endMin int, err error) {
	parts := strings.Split(condition, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time range %q: want HH:MM-HH:MM", condition)
	}
	startMin, err = parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	endMin, err = parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return startMin, endMin, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
