package httpadapter

import (
	"net/http"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

// errorClass is the status and stable code reported for a domain error kind.
type errorClass struct {
	status int
	code   string
}

// Temporary is checked before collaborator so an open breaker maps to 503.
func classifyError(err error) errorClass {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return errorClass{status: http.StatusBadRequest, code: "invalid_input"}
	case domain.IsKind(err, domain.ErrNotFound):
		return errorClass{status: http.StatusNotFound, code: "not_found"}
	case domain.IsKind(err, domain.ErrTemporary):
		return errorClass{status: http.StatusServiceUnavailable, code: "temporarily_unavailable"}
	case domain.IsKind(err, domain.ErrCollaborator):
		return errorClass{status: http.StatusBadGateway, code: "collaborator_failed"}
	default:
		return errorClass{status: http.StatusInternalServerError, code: "internal"}
	}
}
