package shared

import "context"

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}

// IdempotencyPort guards against double submission of the same request.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// DocumentMetrics receives business document counters.
type DocumentMetrics interface {
	DocumentCreated(kind string)
	RuleViolated(rule string)
}

// CollectionInvalidator drops cached dropdown collections after a write.
type CollectionInvalidator interface {
	Invalidate(ctx context.Context, collection string)
}

// RecordAudit writes the entry when an audit port is configured. Failures are
// swallowed so a committed document is never reported as failed.
func RecordAudit(ctx context.Context, audit AuditPort, log AuditLog) {
	if audit == nil {
		return
	}
	_ = audit.Record(ctx, log)
}
