package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
)

// IntegrityChecker runs the stock reconciliation.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, now time.Time) (inventory.IntegrityReport, error)
}

// StockIntegrityJob compares each stock's latest ledger entry with its quantity.
type StockIntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStockIntegrityJob initialises the integrity handler.
func NewStockIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockIntegrityJob {
	return &StockIntegrityJob{
		Checker: checker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one integrity run. Mismatches are reported, never repaired.
func (j *StockIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("stock integrity: handler not configured")
	}
	start := j.clock()
	tracker := j.Metrics.Track(JobStockIntegrity)
	logger := j.logger().With(slog.String("job", JobStockIntegrity))

	report, err := j.Checker.CheckIntegrity(ctx, start)
	if err != nil {
		logger.Error("stock integrity failed", slog.Any("error", err))
		return tracker.End(err)
	}
	for _, m := range report.Mismatches {
		logger.Warn("stock ledger mismatch",
			slog.Int64("stock_id", m.StockID),
			slog.String("sku", m.SKU),
			slog.Int64("received_quantity", m.ReceivedQuantity),
			slog.Int64("last_qty_after", m.LastQtyAfter),
		)
	}
	j.Metrics.AddStockMismatches(len(report.Mismatches))
	j.Metrics.AddExpiredBatches(report.ExpiredBatches)

	logger.Info("stock integrity completed",
		slog.Int("mismatches", len(report.Mismatches)),
		slog.Int64("expired_batches", report.ExpiredBatches),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(nil)
}

func (j *StockIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
