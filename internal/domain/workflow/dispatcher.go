package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bookingfast/internal/common"
	"bookingfast/internal/domain/booking"
)

// State is the terminal state of one workflow's dispatch attempt.
type State string

const (
	StateSkipped   State = "skipped"
	StateSent      State = "sent"
	StateFailed    State = "failed"
	StateScheduled State = "scheduled"
)

// Outcome is the result of running one workflow for an event.
type Outcome struct {
	WorkflowID string
	State      State
	Reason     string
	ProviderID string
	Err        error
}

// Report is the result of one Dispatch call. Err is set when the whole
// dispatch was abandoned before any workflow ran.
type Report struct {
	ID        string
	Channel   Channel
	Trigger   Trigger
	OwnerID   string
	BookingID string
	Outcomes  []Outcome
	Err       error
	Duration  time.Duration
}

// Count returns how many outcomes ended in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

// Dispatcher runs the workflows of one channel for domain events:
// preconditions, matching, debounce, template, delay, render, validate,
// send, statistics.
type Dispatcher struct {
	adapter   Adapter
	matcher   *Matcher
	workflows WorkflowStore
	templates TemplateStore
	logs      DeliveryLogStore
	guard     *Guard
	scheduler Scheduler
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithGuard replaces the default in-memory debounce guard.
func WithGuard(g *Guard) Option {
	return func(d *Dispatcher) { d.guard = g }
}

// WithDeliveryLog records every send attempt in store.
func WithDeliveryLog(store DeliveryLogStore) Option {
	return func(d *Dispatcher) { d.logs = store }
}

// WithScheduler hands delayed workflows to s instead of sleeping in the
// dispatching goroutine.
func WithScheduler(s Scheduler) Option {
	return func(d *Dispatcher) { d.scheduler = s }
}

// WithSleeper replaces the context-aware sleep used for workflow delays.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// WithClock sets the clock used for delivery log timestamps and the
// default guard.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher for the adapter's channel.
func NewDispatcher(adapter Adapter, workflows WorkflowStore, templates TemplateStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		adapter:   adapter,
		matcher:   NewMatcher(workflows),
		workflows: workflows,
		templates: templates,
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.guard == nil {
		d.guard = NewGuard(NewMemoryDedupStore(), DefaultDebounceWindow, DefaultDedupRetention, d.now)
	}
	return d
}

// Channel returns the channel this dispatcher delivers on.
func (d *Dispatcher) Channel() Channel { return d.adapter.Channel() }

// Trigger dispatches the event and logs the result. It never panics and
// never reports an error to the caller: notification delivery must not
// affect the booking operation that raised the event.
func (d *Dispatcher) Trigger(ctx context.Context, trigger Trigger, b *booking.Booking, ownerID string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("workflow dispatch panicked",
				"channel", d.Channel(),
				"trigger", trigger,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	logReport(d.Dispatch(ctx, trigger, b, ownerID))
}

// Dispatch runs every matching workflow one after another and returns what
// happened to each. A failure in one workflow does not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger Trigger, b *booking.Booking, ownerID string) *Report {
	start := time.Now()
	report := &Report{
		ID:      uuid.New().String(),
		Channel: d.Channel(),
		Trigger: trigger,
		OwnerID: ownerID,
	}
	defer func() { report.Duration = time.Since(start) }()

	if b == nil {
		report.Err = common.NewValidationError("no booking provided")
		return report
	}
	report.BookingID = b.ID

	if ownerID == "" {
		report.Err = common.NewConfigurationError("no owner id for booking %s", b.ID)
		return report
	}
	if !trigger.Valid() {
		report.Err = common.NewValidationError("unknown trigger %q", trigger)
		return report
	}

	to, err := d.adapter.Recipient(trigger, b)
	if err != nil {
		report.Err = err
		return report
	}

	workflows, err := d.matcher.FindMatching(ctx, d.Channel(), trigger, ownerID, b)
	if err != nil {
		report.Err = err
		return report
	}

	for _, wf := range workflows {
		report.Outcomes = append(report.Outcomes, d.dispatchOne(ctx, wf, trigger, b, ownerID, to))
	}
	return report
}

func (d *Dispatcher) dispatchOne(ctx context.Context, wf *Workflow, trigger Trigger, b *booking.Booking, ownerID, to string) (out Outcome) {
	out.WorkflowID = wf.ID
	defer func() {
		if r := recover(); r != nil {
			out.State = StateFailed
			out.Reason = "panic"
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	if d.guard.ShouldSkip(ctx, d.Channel(), wf.ID, b.ID, trigger) {
		out.State, out.Reason = StateSkipped, "recently dispatched"
		return out
	}

	tmpl, err := d.templates.GetTemplate(ctx, d.Channel(), wf.TemplateID)
	if err != nil {
		out.State, out.Reason, out.Err = StateFailed, "template lookup failed", err
		return out
	}
	if tmpl == nil {
		out.State, out.Reason = StateSkipped, "template not found"
		out.Err = common.NewNotFoundError("template", wf.TemplateID)
		return out
	}

	if delay := wf.DelayDuration(); delay > 0 {
		if d.scheduler != nil {
			taskID, err := d.scheduler.ScheduleDelivery(ctx, &DeliveryPayload{
				Channel:    d.Channel(),
				Trigger:    trigger,
				OwnerID:    ownerID,
				WorkflowID: wf.ID,
				TemplateID: wf.TemplateID,
				To:         to,
				Booking:    b,
			}, delay)
			if err != nil {
				out.State, out.Reason, out.Err = StateFailed, "scheduling failed", err
				return out
			}
			out.State, out.Reason = StateScheduled, "delivery task "+taskID
			return out
		}
		if err := d.sleep(ctx, delay); err != nil {
			out.State, out.Reason, out.Err = StateFailed, "delay interrupted", err
			return out
		}
	}

	return d.deliver(ctx, wf.ID, tmpl, b, ownerID, to)
}

// DeliverScheduled completes a workflow whose delay was handed to the
// scheduler. The template is looked up again so edits made during the delay
// are honored.
func (d *Dispatcher) DeliverScheduled(ctx context.Context, p *DeliveryPayload) (out Outcome) {
	out.WorkflowID = p.WorkflowID
	defer func() {
		if r := recover(); r != nil {
			out.State = StateFailed
			out.Reason = "panic"
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	tmpl, err := d.templates.GetTemplate(ctx, d.Channel(), p.TemplateID)
	if err != nil {
		out.State, out.Reason, out.Err = StateFailed, "template lookup failed", err
		return out
	}
	if tmpl == nil {
		out.State, out.Reason = StateSkipped, "template not found"
		out.Err = common.NewNotFoundError("template", p.TemplateID)
		return out
	}
	return d.deliver(ctx, p.WorkflowID, tmpl, p.Booking, p.OwnerID, p.To)
}

// deliver renders, validates, sends and records one message.
func (d *Dispatcher) deliver(ctx context.Context, workflowID string, tmpl *Template, b *booking.Booking, ownerID, to string) (out Outcome) {
	out.WorkflowID = workflowID

	msg := &Message{
		OwnerID:    ownerID,
		WorkflowID: workflowID,
		BookingID:  b.ID,
		To:         to,
		Subject:    Render(tmpl.Subject, b),
		Body:       Render(tmpl.Content, b),
	}

	if err := d.adapter.Validate(msg); err != nil {
		d.record(ctx, workflowID, msg, "", err)
		out.State, out.Reason, out.Err = StateFailed, "message rejected", err
		return out
	}

	providerID, err := d.adapter.Send(ctx, msg)
	var configErr *common.ConfigurationError
	if errors.As(err, &configErr) {
		out.State, out.Reason, out.Err = StateSkipped, "channel not configured", err
		return out
	}
	d.record(ctx, workflowID, msg, providerID, err)
	if err != nil {
		out.State, out.Reason, out.Err = StateFailed, "delivery failed", err
		return out
	}

	out.State, out.ProviderID = StateSent, providerID
	return out
}

// record writes the delivery log and statistics. Failures here are logged
// and do not change the outcome.
func (d *Dispatcher) record(ctx context.Context, workflowID string, msg *Message, providerID string, sendErr error) {
	if d.logs != nil {
		entry := &DeliveryLog{
			Channel:    d.Channel(),
			UserID:     msg.OwnerID,
			WorkflowID: workflowID,
			BookingID:  msg.BookingID,
			Recipient:  msg.To,
			Subject:    msg.Subject,
			Content:    msg.Body,
			Status:     DeliverySent,
			ProviderID: providerID,
			CreatedAt:  d.now().UTC(),
		}
		if sendErr != nil {
			entry.Status = DeliveryFailed
			entry.ErrorMessage = sendErr.Error()
		}
		if err := d.logs.CreateLog(ctx, entry); err != nil {
			slog.Error("failed to write delivery log",
				"channel", d.Channel(),
				"workflow_id", workflowID,
				"booking_id", msg.BookingID,
				"error", err,
			)
		}
	}

	if err := d.workflows.RecordDelivery(ctx, d.Channel(), workflowID, sendErr == nil); err != nil {
		slog.Error("failed to update workflow statistics", "workflow_id", workflowID, "error", err)
	}
}

func logReport(r *Report) {
	attrs := []any{
		"dispatch_id", r.ID,
		"channel", r.Channel,
		"trigger", r.Trigger,
		"booking_id", r.BookingID,
		"owner_id", r.OwnerID,
	}

	if r.Err != nil {
		var configErr *common.ConfigurationError
		var validation *common.ValidationError
		switch {
		case errors.As(r.Err, &configErr):
			slog.Info("workflow dispatch not configured", append(attrs, "reason", r.Err.Error())...)
		case errors.As(r.Err, &validation):
			slog.Warn("workflow dispatch rejected", append(attrs, "reason", r.Err.Error())...)
		default:
			slog.Error("workflow dispatch aborted", append(attrs, "error", r.Err)...)
		}
		return
	}

	if len(r.Outcomes) == 0 {
		slog.Debug("no matching workflows", attrs...)
		return
	}

	for _, o := range r.Outcomes {
		wfAttrs := append(append([]any{}, attrs...), "workflow_id", o.WorkflowID, "reason", o.Reason)
		switch {
		case o.State == StateSent:
			slog.Info("workflow message sent", append(wfAttrs, "provider_id", o.ProviderID)...)
		case o.Err != nil:
			slog.Error("workflow "+string(o.State), append(wfAttrs, "error", o.Err)...)
		default:
			slog.Info("workflow "+string(o.State), wfAttrs...)
		}
	}

	slog.Info("workflow dispatch complete", append(attrs,
		"sent", r.Count(StateSent),
		"skipped", r.Count(StateSkipped),
		"failed", r.Count(StateFailed),
		"scheduled", r.Count(StateScheduled),
		"duration", r.Duration,
	)...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
