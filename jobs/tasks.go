// Package jobs runs the background work: periodic low-stock scans and
// idempotency key cleanup, scheduled over Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cafetiko/roastledger/internal/jobs"
	"github.com/cafetiko/roastledger/internal/ledger"
	"github.com/cafetiko/roastledger/internal/observability"
	"github.com/cafetiko/roastledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan looks for products under the alert threshold.
	TaskLowStockScan = "stock:low_stock_scan"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// IdempotencyCleanupPayload bounds the cleanup window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewLowStockScanTask constructs the scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// Tasks bundles the dependencies the task handlers need.
type Tasks struct {
	Ledger      *ledger.Service
	Idempotency *shared.IdempotencyStore
	Metrics     *observability.Metrics
	JobMetrics  *jobmetrics.Metrics
	Logger      *slog.Logger
}

// HandleLowStockScan logs every product under the threshold and updates the
// low-stock gauge. The ledger's HTTP endpoint serves the same data on
// demand; this task exists so the gauge stays fresh for alerting.
func (t *Tasks) HandleLowStockScan(ctx context.Context, _ *asynq.Task) error {
	tracker := t.JobMetrics.Track("low_stock_scan")
	low, err := t.Ledger.LowStock(ctx)
	if err != nil {
		return tracker.End(err)
	}
	t.Metrics.SetLowStockProducts(len(low))
	for _, sum := range low {
		t.Logger.Warn("product below stock threshold",
			slog.Int64("product_id", sum.ProductID),
			slog.String("product", sum.ProductName),
			slog.Float64("available_g", sum.TotalAvailableG))
	}
	return tracker.End(nil)
}

// HandleIdempotencyCleanup prunes idempotency keys past the window.
func (t *Tasks) HandleIdempotencyCleanup(ctx context.Context, task *asynq.Task) error {
	tracker := t.JobMetrics.Track("idempotency_cleanup")
	payload := IdempotencyCleanupPayload{OlderThan: 24 * time.Hour}
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = 24 * time.Hour
	}
	return tracker.End(t.Idempotency.Cleanup(ctx, payload.OlderThan))
}
