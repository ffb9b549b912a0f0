package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueNotify}, nil
}

func sampleEvent() shared.Event {
	return shared.Event{
		Type:       shared.EventDebitPaymentRecorded,
		EntityID:   "12",
		ActorID:    4,
		Payload:    map[string]any{"amount": "60"},
		OccurredAt: time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestQueueNotifierEnqueuesBroadcastTask(t *testing.T) {
	queue := &fakeEnqueuer{}
	notifier := NewQueueNotifier(queue)

	require.NoError(t, notifier.Notify(context.Background(), sampleEvent()))
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskNotifyBroadcast, queue.tasks[0].Type())

	var decoded shared.Event
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &decoded))
	assert.Equal(t, shared.EventDebitPaymentRecorded, decoded.Type)
	assert.Equal(t, "12", decoded.EntityID)
}

func TestQueueNotifierReportsEnqueueFailure(t *testing.T) {
	notifier := NewQueueNotifier(&fakeEnqueuer{err: errors.New("redis down")})
	err := notifier.Notify(context.Background(), sampleEvent())
	require.ErrorContains(t, err, "redis down")

	var unset *QueueNotifier
	require.Error(t, unset.Notify(context.Background(), sampleEvent()))
}

func TestBroadcasterPublishesEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	sub := client.Subscribe(ctx, "backoffice.events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	b := NewBroadcaster(client, "backoffice.events", discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewNotifyTask(sampleEvent())
	require.NoError(t, err)
	require.NoError(t, b.Handle(ctx, task))

	select {
	case msg := <-sub.Channel():
		var evt shared.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, shared.EventDebitPaymentRecorded, evt.Type)
		assert.Equal(t, int64(4), evt.ActorID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestBroadcasterSkipsMalformedPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewBroadcaster(client, "backoffice.events", discardLogger(), nil)
	err := b.Handle(context.Background(), asynq.NewTask(TaskNotifyBroadcast, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBroadcasterReturnsPublishError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	b := NewBroadcaster(client, "backoffice.events", discardLogger(), nil)
	task, err := NewNotifyTask(sampleEvent())
	require.NoError(t, err)
	require.Error(t, b.Handle(context.Background(), task))
}

type fakeChecker struct {
	report inventory.IntegrityReport
	err    error
	calls  int
}

func (f *fakeChecker) CheckIntegrity(context.Context, time.Time) (inventory.IntegrityReport, error) {
	f.calls++
	return f.report, f.err
}

func TestStockIntegrityJob(t *testing.T) {
	checker := &fakeChecker{report: inventory.IntegrityReport{
		Mismatches:     []inventory.Mismatch{{StockID: 1, SKU: "W-1", ReceivedQuantity: 10, LastQtyAfter: 8}},
		ExpiredBatches: 2,
	}}
	job := NewStockIntegrityJob(checker, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), NewStockIntegrityTask()))
	assert.Equal(t, 1, checker.calls)

	checker.err = errors.New("db gone")
	require.ErrorContains(t, job.Handle(context.Background(), NewStockIntegrityTask()), "db gone")

	var unset *StockIntegrityJob
	require.Error(t, unset.Handle(context.Background(), NewStockIntegrityTask()))
}

type fakeInspector struct {
	info map[string]*asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.info[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthHandler(t *testing.T) {
	inspector := fakeInspector{info: map[string]*asynq.QueueInfo{
		QueueNotify: {Queue: QueueNotify, Pending: 3, Active: 1},
	}}
	r := chi.NewRouter()
	NewHandler(inspector, discardLogger()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Queues []QueueHealth `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Queues, 2)
	assert.Equal(t, QueueHealth{Queue: QueueDefault}, body.Queues[0])
	assert.Equal(t, 3, body.Queues[1].Pending)

	r = chi.NewRouter()
	NewHandler(fakeInspector{err: errors.New("no redis")}, discardLogger()).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	require.Error(t, err)
}

type fakeCleaner struct {
	olderThan time.Duration
	err       error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 4, f.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, discardLogger(), nil)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, cleaner.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, defaultIdempotencyRetention, cleaner.olderThan)

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("x"))), asynq.SkipRetry)

	cleaner.err = errors.New("locked")
	require.ErrorContains(t, job.Handle(context.Background(), task), "locked")
}
