package httpadapter

import (
	"errors"
	"net/http"

	"github.com/mhduong/docsorter/internal/core/domain"
)

var errEmailRequired = errors.New("email is required")

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrRunNotFound),
		domain.IsKind(err, domain.ErrConfigNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
