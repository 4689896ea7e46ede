package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrRuleNotFound      = errors.New("trigger rule not found")
	ErrAccountNotFound   = errors.New("provider account not found")
	ErrDuplicateMessage  = errors.New("duplicate message")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
