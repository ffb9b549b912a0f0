package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Enqueuer is the subset of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier implements shared.Notifier by enqueueing a broadcast task.
type QueueNotifier struct {
	queue Enqueuer
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(queue Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

// Notify enqueues evt for broadcast.
func (n *QueueNotifier) Notify(ctx context.Context, evt shared.Event) error {
	if n == nil || n.queue == nil {
		return errors.New("notify: queue not configured")
	}
	task, err := NewNotifyTask(evt)
	if err != nil {
		return fmt.Errorf("notify: build task: %w", err)
	}
	if _, err := n.queue.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", evt.Type, err)
	}
	return nil
}

// Publisher is the subset of the Redis client used for broadcasts.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Broadcaster publishes queued events on a Redis channel.
type Broadcaster struct {
	Publisher Publisher
	Channel   string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewBroadcaster initialises the broadcast handler.
func NewBroadcaster(publisher Publisher, channel string, logger *slog.Logger, metrics *jobmetrics.Metrics) *Broadcaster {
	return &Broadcaster{Publisher: publisher, Channel: channel, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotifyBroadcast tasks.
func (b *Broadcaster) Handle(ctx context.Context, t *asynq.Task) error {
	if b == nil || b.Publisher == nil {
		return errors.New("notify broadcast: publisher not configured")
	}
	var evt shared.Event
	if err := json.Unmarshal(t.Payload(), &evt); err != nil || evt.Type == "" {
		b.logger().Warn("drop malformed notification", slog.Any("error", err))
		return fmt.Errorf("notify broadcast: malformed payload: %w", asynq.SkipRetry)
	}

	tracker := b.Metrics.Track(JobNotifyBroadcast)
	err := b.Publisher.Publish(ctx, b.Channel, t.Payload()).Err()
	b.Metrics.ObserveBroadcast(string(evt.Type), err)
	if err != nil {
		b.logger().Warn("publish notification failed",
			slog.String("event", string(evt.Type)),
			slog.String("entity_id", evt.EntityID),
			slog.Any("error", err),
		)
	}
	return tracker.End(err)
}

func (b *Broadcaster) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
