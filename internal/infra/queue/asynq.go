package queue

import (
	"context"
	"fmt"
	"time"

	"bookingfast/internal/domain/workflow"

	"github.com/hibiken/asynq"
)

// QueueWorkflows is the asynq queue dispatch tasks are routed to.
const QueueWorkflows = "workflows"

// RedisOpt builds the asynq connection options.
func RedisOpt(addr, password string, db int) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

// NewServer creates a new asynq server connected to Redis.
func NewServer(opt asynq.RedisClientOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueWorkflows: 10, // priority weight
			"default":      1,
		},
		RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
			// Exponential backoff: 30s, 60s, 120s, ...
			return time.Duration(30*(1<<uint(n-1))) * time.Second
		},
	})
}

var (
	_ workflow.Enqueuer  = (*Enqueuer)(nil)
	_ workflow.Scheduler = (*Enqueuer)(nil)
)

// taskClient is the subset of *asynq.Client used for enqueueing.
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer hands dispatch payloads to the asynq queue.
type Enqueuer struct {
	client   taskClient
	maxRetry int
	timeout  time.Duration
}

// NewEnqueuer wraps an asynq client. timeout bounds a single task run;
// workflow delays are not spent inside a task.
func NewEnqueuer(client *asynq.Client, maxRetry int, timeout time.Duration) *Enqueuer {
	return &Enqueuer{client: client, maxRetry: maxRetry, timeout: timeout}
}

// EnqueueDispatch enqueues a workflow dispatch task and returns its ID.
func (e *Enqueuer) EnqueueDispatch(ctx context.Context, p *workflow.DispatchPayload) (string, error) {
	task, err := workflow.NewDispatchTask(p)
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	info, err := e.client.EnqueueContext(ctx, task, e.options()...)
	if err != nil {
		return "", fmt.Errorf("enqueuing task: %w", err)
	}
	return info.ID, nil
}

// ScheduleDelivery enqueues a delivery task that becomes ready after delay.
func (e *Enqueuer) ScheduleDelivery(ctx context.Context, p *workflow.DeliveryPayload, delay time.Duration) (string, error) {
	task, err := workflow.NewDeliveryTask(p)
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	opts := append(e.options(), asynq.ProcessIn(delay))
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("scheduling task: %w", err)
	}
	return info.ID, nil
}

func (e *Enqueuer) options() []asynq.Option {
	opts := []asynq.Option{
		asynq.MaxRetry(e.maxRetry),
		asynq.Queue(QueueWorkflows),
	}
	if e.timeout > 0 {
		opts = append(opts, asynq.Timeout(e.timeout))
	}
	return opts
}
