package sync

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/store"
)

// AuditLog appends synchronization outcomes for observability. Writes are
// best-effort: a failed audit write is logged and never propagated, so a
// secondary observability failure cannot mask the primary operation's
// outcome.
type AuditLog struct {
	repo   store.Repository
	logger *zap.Logger
}

func NewAuditLog(repo store.Repository, logger *zap.Logger) *AuditLog {
	return &AuditLog{repo: repo, logger: logger}
}

func (a *AuditLog) Record(ctx context.Context, kind string, origin string, destination string, payload json.RawMessage, status string, errorDetail string) {
	err := a.repo.CreateSyncRecord(ctx, domain.SyncRecord{
		Kind:        kind,
		Origin:      origin,
		Destination: destination,
		Payload:     payload,
		Status:      status,
		ErrorDetail: errorDetail,
	})
	if err != nil {
		a.logger.Warn("failed to write sync audit record",
			zap.String("kind", kind),
			zap.String("status", status),
			zap.Error(err))
	}
}
