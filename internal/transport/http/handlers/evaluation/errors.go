package evaluationhandler

import (
	"errors"
	"log/slog"
	"net/http"

	"evalhub/internal/domain/evaluation"
	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/middleware"
	"evalhub/internal/transport/http/shared"
)

// writeError maps the evaluation error taxonomy onto HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())

	var verr *evaluation.ValidationError
	if errors.As(err, &verr) {
		issues := make([]shared.ValidationIssue, 0, len(verr.Issues))
		for _, issue := range verr.Issues {
			issues = append(issues, shared.ValidationIssue{Field: issue.Field, Reason: issue.Reason})
		}
		shared.FailValidation(w, requestID, issues)
		return
	}

	var dup *evaluation.DuplicateSubmissionError
	if errors.As(err, &dup) {
		api.FailWithData(w, http.StatusConflict, "duplicate_submission", "an evaluation for this period already exists", evaluation.NewView(dup.Existing), requestID)
		return
	}

	var transient *evaluation.TransientStoreError
	switch {
	case errors.Is(err, evaluation.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "evaluation not found", requestID)
	case errors.Is(err, evaluation.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed", requestID)
	case errors.Is(err, evaluation.ErrInvalidTransition):
		api.Fail(w, http.StatusBadRequest, "invalid_transition", err.Error(), requestID)
	case errors.Is(err, evaluation.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.As(err, &transient):
		slog.Warn("evaluation store unavailable", "op", transient.Op, "err", transient.Err)
		api.Fail(w, http.StatusServiceUnavailable, "store_unavailable", "evaluation store unavailable, retry later", requestID)
	default:
		slog.Error(message, "err", err)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}
