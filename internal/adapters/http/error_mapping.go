package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// apiError is the client facing shape of a domain failure.
type apiError struct {
	Status int
	Code   string
	// Stage names the failing pipeline stage (embed, generate) for external failures.
	Stage string
	// RetryAfter is set in seconds for failures worth retrying.
	RetryAfter int
}

// classifyError maps error kinds to responses. External stage failures win
// over temporary ones so a timed out generation reports 502.
func classifyError(err error) apiError {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return apiError{Status: http.StatusBadRequest, Code: "invalid_input"}
	case domain.IsKind(err, domain.ErrNotFound):
		return apiError{Status: http.StatusNotFound, Code: "not_found"}
	case domain.IsKind(err, domain.ErrExternal):
		out := apiError{Status: http.StatusBadGateway, Code: "upstream_failure"}
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			out.Stage = stageErr.Stage
		}
		return out
	case domain.IsKind(err, domain.ErrTemporary):
		return apiError{Status: http.StatusServiceUnavailable, Code: "temporarily_unavailable", RetryAfter: 1}
	case domain.IsKind(err, domain.ErrUnavailable):
		return apiError{Status: http.StatusServiceUnavailable, Code: "service_disabled"}
	default:
		return apiError{Status: http.StatusInternalServerError, Code: "internal"}
	}
}
