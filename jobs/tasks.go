package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bizdesk/bizdesk/internal/inventory"
	jobmetrics "github.com/bizdesk/bizdesk/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuotationsExpire marks stale quotations as expired.
	TaskQuotationsExpire = "quotations:expire"
	// TaskIdempotencyCleanup prunes processed request keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskInventoryLowStock reports items at or below their reorder level.
	TaskInventoryLowStock = "inventory:low-stock"

	// DefaultIdempotencyRetention is how long request keys are kept.
	DefaultIdempotencyRetention = 7 * 24 * time.Hour
)

// QuotationExpirer expires quotations whose validity ended before asOf.
type QuotationExpirer interface {
	ExpireQuotations(ctx context.Context, asOf time.Time) (int, error)
}

// IdempotencyCleaner removes request keys older than a retention window.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// LowStockLister lists active items at or below reorder level.
type LowStockLister interface {
	ListLowStock(ctx context.Context) ([]inventory.Item, error)
}

// QuotationsExpirePayload carries an optional as-of date (YYYY-MM-DD).
type QuotationsExpirePayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// IdempotencyCleanupPayload overrides the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewQuotationsExpireTask builds a quotations:expire task. An empty asOf
// means "today" at execution time.
func NewQuotationsExpireTask(asOf string) (*asynq.Task, error) {
	data, err := json.Marshal(QuotationsExpirePayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationsExpire, data, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask builds an idempotency:cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// NewInventoryLowStockTask builds an inventory:low-stock task.
func NewInventoryLowStockTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskInventoryLowStock, []byte("{}"), asynq.Queue(QueueDefault)), nil
}

// NewTask builds the default task for a job name.
func NewTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskQuotationsExpire:
		return NewQuotationsExpireTask("")
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(DefaultIdempotencyRetention)
	case TaskInventoryLowStock:
		return NewInventoryLowStockTask()
	default:
		return nil, fmt.Errorf("jobs: unsupported job %s", name)
	}
}

// Tasks bundles the handlers of the maintenance jobs.
type Tasks struct {
	Quotations  QuotationExpirer
	Idempotency IdempotencyCleaner
	Stock       LowStockLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewTasks constructs the job handlers.
func NewTasks(quotations QuotationExpirer, idem IdempotencyCleaner, stock LowStockLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *Tasks {
	return &Tasks{
		Quotations:  quotations,
		Idempotency: idem,
		Stock:       stock,
		Logger:      logger,
		Metrics:     metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handlers lists the task handlers for worker registration.
func (t *Tasks) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskQuotationsExpire, Handler: t.HandleQuotationsExpire},
		{Type: TaskIdempotencyCleanup, Handler: t.HandleIdempotencyCleanup},
		{Type: TaskInventoryLowStock, Handler: t.HandleInventoryLowStock},
	}
}

// HandleQuotationsExpire processes TaskQuotationsExpire tasks.
func (t *Tasks) HandleQuotationsExpire(ctx context.Context, task *asynq.Task) (err error) {
	if t == nil || t.Quotations == nil {
		return errors.New("quotations expire: handler not configured")
	}
	var payload QuotationsExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := t.now()
	if payload.AsOf != "" {
		asOf, err = time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return fmt.Errorf("quotations expire: as_of: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := t.Metrics.Track(TaskQuotationsExpire)
	defer func() { err = tracker.End(err) }()

	n, err := t.Quotations.ExpireQuotations(ctx, asOf)
	if err != nil {
		t.logger().Error("expire quotations failed", slog.Any("error", err))
		return err
	}
	t.Metrics.AddAffected(TaskQuotationsExpire, n)
	t.logger().Info("quotations expired", slog.Int("count", n), slog.Time("as_of", asOf))
	return nil
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup tasks.
func (t *Tasks) HandleIdempotencyCleanup(ctx context.Context, task *asynq.Task) (err error) {
	if t == nil || t.Idempotency == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := DefaultIdempotencyRetention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}

	tracker := t.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	n, err := t.Idempotency.Cleanup(ctx, retention)
	if err != nil {
		t.logger().Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	t.Metrics.AddAffected(TaskIdempotencyCleanup, int(n))
	t.logger().Info("idempotency keys removed", slog.Int64("count", n), slog.Duration("retention", retention))
	return nil
}

// HandleInventoryLowStock processes TaskInventoryLowStock tasks.
func (t *Tasks) HandleInventoryLowStock(ctx context.Context, _ *asynq.Task) (err error) {
	if t == nil || t.Stock == nil {
		return errors.New("inventory low stock: handler not configured")
	}
	tracker := t.Metrics.Track(TaskInventoryLowStock)
	defer func() { err = tracker.End(err) }()

	items, err := t.Stock.ListLowStock(ctx)
	if err != nil {
		t.logger().Error("list low stock failed", slog.Any("error", err))
		return err
	}
	for _, item := range items {
		t.logger().Warn("item at or below reorder level",
			slog.String("item_id", item.ID.String()),
			slog.String("code", item.Code),
			slog.Float64("stock", item.Stock),
			slog.Float64("reorder_level", item.ReorderLevel),
		)
	}
	t.Metrics.AddAffected(TaskInventoryLowStock, len(items))
	return nil
}

func (t *Tasks) now() time.Time {
	if t.clock != nil {
		return t.clock()
	}
	return time.Now().UTC()
}

func (t *Tasks) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
