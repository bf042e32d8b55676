package httpadapter

import (
	"net/http"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrProviderUnavailable),
		resilience.IsCircuitOpen(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
