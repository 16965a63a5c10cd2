package shared

import (
	"context"
	"net/http"

	"evalhub/internal/requestctx"
)

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

// RecordAudit writes an audit event for the request. Failures are logged;
// the mutation they describe has already happened.
func RecordAudit(r *http.Request, auditor Auditor, actorID, action, entityType, entityID string, before, after any) {
	if auditor == nil {
		return
	}
	ctx := r.Context()
	if err := auditor.Record(ctx, actorID, action, entityType, entityID, requestctx.GetRequestID(ctx), ClientIP(r), before, after); err != nil {
		requestctx.Log(ctx).Warn("audit record failed", "action", action, "err", err)
	}
}
