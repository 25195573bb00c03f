package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"bookingfast/internal/domain/booking"
)

const (
	// TaskTypeDispatch is the asynq task type for running a channel's workflows.
	TaskTypeDispatch = "workflow:dispatch"
	// TaskTypeDeliver is the asynq task type for one delayed workflow message.
	TaskTypeDeliver = "workflow:deliver"
)

// DispatchPayload is the serialized payload of a dispatch task. The booking
// travels as a snapshot taken when the event was raised.
type DispatchPayload struct {
	Channel Channel          `json:"channel"`
	Trigger Trigger          `json:"trigger"`
	OwnerID string           `json:"owner_id"`
	Booking *booking.Booking `json:"booking"`
}

// Enqueuer defines the contract for handing dispatch work to the worker.
// This allows the service to be decoupled from the specific queue implementation.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, p *DispatchPayload) (taskID string, err error)
}

// DeliveryPayload is one workflow message whose delay has been handed to the
// queue. Matching, debounce and recipient resolution already happened.
type DeliveryPayload struct {
	Channel    Channel          `json:"channel"`
	Trigger    Trigger          `json:"trigger"`
	OwnerID    string           `json:"owner_id"`
	WorkflowID string           `json:"workflow_id"`
	TemplateID string           `json:"template_id"`
	To         string           `json:"to"`
	Booking    *booking.Booking `json:"booking"`
}

// Scheduler defers a delivery until delay has passed.
type Scheduler interface {
	ScheduleDelivery(ctx context.Context, p *DeliveryPayload, delay time.Duration) (taskID string, err error)
}

// NewDispatchTask creates a new asynq task for the payload.
func NewDispatchTask(p *DispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDispatch, data), nil
}

// ParseDispatchPayload deserializes the task payload. Unknown channels or
// triggers are rejected.
func ParseDispatchPayload(data []byte) (*DispatchPayload, error) {
	var p DispatchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	if p.Booking == nil {
		return nil, fmt.Errorf("task payload has no booking")
	}
	return &p, nil
}

// HandleDispatchTask returns an asynq handler that runs the engine for each
// task. It only fails on undecodable payloads, which asynq archives after
// its retries; dispatch failures are never retried.
func HandleDispatchTask(engine *Engine) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := ParseDispatchPayload(task.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		engine.Trigger(ctx, p.Channel, p.Trigger, p.Booking, p.OwnerID)
		return nil
	}
}

// NewDeliveryTask creates a new asynq task for a delayed delivery.
func NewDeliveryTask(p *DeliveryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDeliver, data), nil
}

// ParseDeliveryPayload deserializes a delayed delivery payload.
func ParseDeliveryPayload(data []byte) (*DeliveryPayload, error) {
	var p DeliveryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	if p.Booking == nil {
		return nil, fmt.Errorf("task payload has no booking")
	}
	if p.WorkflowID == "" || p.TemplateID == "" {
		return nil, fmt.Errorf("task payload has no workflow or template id")
	}
	return &p, nil
}

// HandleDeliveryTask returns an asynq handler that completes delayed
// deliveries. Like dispatch tasks, only undecodable payloads fail.
func HandleDeliveryTask(engine *Engine) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := ParseDeliveryPayload(task.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		engine.Deliver(ctx, p)
		return nil
	}
}
