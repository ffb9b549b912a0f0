package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotify carries subscriber notifications.
	QueueNotify = "notify"
	// TaskNotifyBroadcast publishes a committed event to subscribers.
	TaskNotifyBroadcast = "notify:broadcast"
	// TaskStockIntegrity reconciles stock quantities with their ledger.
	TaskStockIntegrity = "inventory:stock_integrity"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "sales:idempotency_cleanup"

	// JobStockIntegrity labels integrity runs in metrics and logs.
	JobStockIntegrity = "stock_integrity"
	// JobNotifyBroadcast labels broadcast runs in metrics and logs.
	JobNotifyBroadcast = "notify_broadcast"
	// JobIdempotencyCleanup labels cleanup runs in metrics and logs.
	JobIdempotencyCleanup = "idempotency_cleanup"
)

// NewNotifyTask wraps evt in a broadcast task.
func NewNotifyTask(evt shared.Event) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyBroadcast, body, asynq.Queue(QueueNotify), asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// NewStockIntegrityTask builds the integrity task. It carries no payload.
func NewStockIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskStockIntegrity, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// IdempotencyCleanupPayload sets how long claimed keys are kept.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
