package httpadapter

import (
	"net/http"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrMessageNotFound),
		domain.IsKind(err, domain.ErrRuleNotFound),
		domain.IsKind(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateMessage):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
