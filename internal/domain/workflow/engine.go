package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"bookingfast/internal/domain/booking"
)

// Engine is the in-process trigger API: one dispatcher per channel.
type Engine struct {
	dispatchers map[Channel]*Dispatcher
}

// NewEngine creates an engine from the given dispatchers. Nil entries are
// ignored, which disables that channel.
func NewEngine(dispatchers ...*Dispatcher) *Engine {
	m := make(map[Channel]*Dispatcher, len(dispatchers))
	for _, d := range dispatchers {
		if d != nil {
			m[d.Channel()] = d
		}
	}
	return &Engine{dispatchers: m}
}

// TriggerWorkflow runs the email workflows for the event.
func (e *Engine) TriggerWorkflow(ctx context.Context, trigger Trigger, b *booking.Booking, ownerID string) {
	e.Trigger(ctx, ChannelEmail, trigger, b, ownerID)
}

// TriggerSMSWorkflow runs the SMS workflows for the event.
func (e *Engine) TriggerSMSWorkflow(ctx context.Context, trigger Trigger, b *booking.Booking, ownerID string) {
	e.Trigger(ctx, ChannelSMS, trigger, b, ownerID)
}

// Trigger runs the workflows of one channel. Disabled channels are a no-op.
func (e *Engine) Trigger(ctx context.Context, channel Channel, trigger Trigger, b *booking.Booking, ownerID string) {
	d, ok := e.dispatchers[channel]
	if !ok {
		slog.Debug("channel disabled, dropping event", "channel", channel, "trigger", trigger)
		return
	}
	d.Trigger(ctx, trigger, b, ownerID)
}

// Deliver completes a delayed workflow message and logs the outcome.
func (e *Engine) Deliver(ctx context.Context, p *DeliveryPayload) {
	d, ok := e.dispatchers[p.Channel]
	if !ok {
		slog.Debug("channel disabled, dropping delivery", "channel", p.Channel, "workflow_id", p.WorkflowID)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("workflow delivery panicked", "channel", p.Channel, "panic", fmt.Sprint(r))
		}
	}()

	o := d.DeliverScheduled(ctx, p)
	attrs := []any{
		"channel", p.Channel,
		"trigger", p.Trigger,
		"owner_id", p.OwnerID,
		"booking_id", p.Booking.ID,
		"workflow_id", o.WorkflowID,
		"reason", o.Reason,
	}
	switch {
	case o.State == StateSent:
		slog.Info("delayed workflow message sent", append(attrs, "provider_id", o.ProviderID)...)
	case o.Err != nil:
		slog.Error("delayed workflow "+string(o.State), append(attrs, "error", o.Err)...)
	default:
		slog.Info("delayed workflow "+string(o.State), attrs...)
	}
}

// Channels lists the enabled channels.
func (e *Engine) Channels() []Channel {
	out := make([]Channel, 0, len(e.dispatchers))
	for _, c := range []Channel{ChannelEmail, ChannelSMS} {
		if _, ok := e.dispatchers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
