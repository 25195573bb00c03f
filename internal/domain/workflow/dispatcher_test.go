package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingfast/internal/common"
	"bookingfast/internal/domain/booking"
)

type smsFixture struct {
	workflows *fakeWorkflowStore
	templates *fakeTemplateStore
	logs      *fakeLogStore
	gateway   *fakeGateway
	clock     *fakeClock
	slept     []time.Duration
	d         *Dispatcher
}

func newSMSFixture(t *testing.T, opts ...SMSOption) *smsFixture {
	t.Helper()
	f := &smsFixture{
		workflows: &fakeWorkflowStore{},
		templates: &fakeTemplateStore{templates: map[string]*Template{}, errs: map[string]error{}},
		logs:      &fakeLogStore{},
		gateway:   &fakeGateway{},
		clock:     newFakeClock(),
	}
	f.d = NewDispatcher(
		NewSMSAdapter(f.gateway, opts...),
		f.workflows,
		f.templates,
		WithDeliveryLog(f.logs),
		WithClock(f.clock.Now),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			f.slept = append(f.slept, d)
			return nil
		}),
	)
	return f
}

func (f *smsFixture) addWorkflow(id, templateID, content string, trigger Trigger) *Workflow {
	wf := &Workflow{
		ID:         id,
		UserID:     "owner-1",
		Channel:    ChannelSMS,
		Trigger:    trigger,
		TemplateID: templateID,
		Active:     true,
	}
	f.workflows.workflows = append(f.workflows.workflows, wf)
	if content != "" {
		f.templates.templates[templateID] = &Template{ID: templateID, Channel: ChannelSMS, Content: content}
	}
	return wf
}

func TestDispatchSendsRenderedSMS(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", "Bonjour {{client_firstname}}, RDV le {{booking_date}} à {{booking_time}}", TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.NoError(t, report.Err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateSent, report.Outcomes[0].State)
	assert.Equal(t, "SM1", report.Outcomes[0].ProviderID)

	require.Equal(t, 1, f.gateway.count())
	req := f.gateway.requests[0]
	assert.Equal(t, "+33612345678", req.ToPhone)
	assert.Equal(t, "Bonjour Alice, RDV le 15/06 à 14:30", req.Message)
	assert.Equal(t, "owner-1", req.UserID)
	assert.Equal(t, "wf-1", req.WorkflowID)
	assert.Equal(t, "bk-1", req.BookingID)

	require.Len(t, f.logs.logs, 1)
	assert.Equal(t, DeliverySent, f.logs.logs[0].Status)
	assert.Equal(t, "SM1", f.logs.logs[0].ProviderID)
	assert.Equal(t, []statCall{{WorkflowID: "wf-1", Success: true}}, f.workflows.stats)
}

func TestDispatchRejectsOversizedSMSBeforeSending(t *testing.T) {
	f := newSMSFixture(t)
	// "Alice" renders to 5 characters, so 156 + 5 = 161.
	content := strings.Repeat("x", 156) + "{{client_firstname}}"
	f.addWorkflow("wf-1", "tpl-1", content, TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	var validation *common.ValidationError
	assert.ErrorAs(t, report.Outcomes[0].Err, &validation)
	assert.Zero(t, f.gateway.count())

	require.Len(t, f.logs.logs, 1)
	assert.Equal(t, DeliveryFailed, f.logs.logs[0].Status)
	assert.Contains(t, f.logs.logs[0].ErrorMessage, "161")
	assert.Equal(t, []statCall{{WorkflowID: "wf-1", Success: false}}, f.workflows.stats)
}

func TestDispatchAcceptsExactly160Characters(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", strings.Repeat("é", 155)+"{{client_firstname}}", TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateSent, report.Outcomes[0].State)
	assert.Equal(t, 1, f.gateway.count())
}

func TestDispatchDebouncesRepeatedTrigger(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", "Hello {{client_firstname}}", TriggerBookingCreated)
	ctx := context.Background()
	b := sampleBooking()

	f.d.Trigger(ctx, TriggerBookingCreated, b, "owner-1")
	f.clock.Advance(2 * time.Second)
	f.d.Trigger(ctx, TriggerBookingCreated, b, "owner-1")
	assert.Equal(t, 1, f.gateway.count())

	f.clock.Advance(6 * time.Second)
	f.d.Trigger(ctx, TriggerBookingCreated, b, "owner-1")
	assert.Equal(t, 2, f.gateway.count())
}

func TestDispatchDebounceReportsSkipped(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", "Hello", TriggerBookingCreated)
	ctx := context.Background()

	f.d.Dispatch(ctx, TriggerBookingCreated, sampleBooking(), "owner-1")
	report := f.d.Dispatch(ctx, TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateSkipped, report.Outcomes[0].State)
	assert.NoError(t, report.Outcomes[0].Err)
}

func TestDispatchIsolatesTemplateLookupFailure(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-a", "tpl-a", "", TriggerBookingCreated)
	f.templates.errs["tpl-a"] = errors.New("connection reset")
	f.addWorkflow("wf-b", "tpl-b", "Hello {{client_firstname}}", TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.NoError(t, report.Err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	assert.Equal(t, "wf-a", report.Outcomes[0].WorkflowID)
	assert.Equal(t, StateSent, report.Outcomes[1].State)
	assert.Equal(t, "wf-b", report.Outcomes[1].WorkflowID)
	assert.Equal(t, 1, f.gateway.count())
}

func TestDispatchSkipsMissingTemplate(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-a", "tpl-missing", "", TriggerBookingCreated)
	f.addWorkflow("wf-b", "tpl-b", "Hello", TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, StateSkipped, report.Outcomes[0].State)
	var notFound *common.NotFoundError
	assert.ErrorAs(t, report.Outcomes[0].Err, &notFound)
	assert.Equal(t, StateSent, report.Outcomes[1].State)
}

func TestDispatchContinuesAfterDeliveryFailure(t *testing.T) {
	f := newSMSFixture(t)
	f.gateway.err = common.NewProviderError("sms", 500, "boom")
	f.addWorkflow("wf-a", "tpl-a", "A", TriggerBookingCreated)
	f.addWorkflow("wf-b", "tpl-b", "B", TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, 2, report.Count(StateFailed))
	assert.Equal(t, 2, f.gateway.count())
	require.Len(t, f.logs.logs, 2)
	for _, l := range f.logs.logs {
		assert.Equal(t, DeliveryFailed, l.Status)
		assert.Contains(t, l.ErrorMessage, "boom")
	}
}

func TestDispatchRunsAllMatchingWorkflowsInOrder(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", "one", TriggerBookingCreated)
	f.addWorkflow("wf-2", "tpl-2", "two", TriggerBookingCreated)
	f.addWorkflow("wf-other", "tpl-3", "other", TriggerBookingCancelled)
	inactive := f.addWorkflow("wf-off", "tpl-4", "off", TriggerBookingCreated)
	inactive.Active = false

	f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Equal(t, 2, f.gateway.count())
	assert.Equal(t, "one", f.gateway.requests[0].Message)
	assert.Equal(t, "two", f.gateway.requests[1].Message)
}

func TestDispatchAppliesConditions(t *testing.T) {
	f := newSMSFixture(t)
	wf := f.addWorkflow("wf-1", "tpl-1", "big spender", TriggerBookingCreated)
	wf.Conditions = []Condition{
		{Field: FieldBookingStatus, Operator: OpEquals, Value: "confirmed"},
		{Field: FieldTotalAmount, Operator: OpGreaterThan, Value: "100"},
	}

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	assert.Empty(t, report.Outcomes)
	assert.Zero(t, f.gateway.count())
}

func TestDispatchHonorsDelay(t *testing.T) {
	f := newSMSFixture(t)
	wf := f.addWorkflow("wf-1", "tpl-1", "later", TriggerBookingCreated)
	wf.Delay = 30

	f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	assert.Equal(t, []time.Duration{30 * time.Second}, f.slept)
	assert.Equal(t, 1, f.gateway.count())
}

func TestDispatchDelayInterrupted(t *testing.T) {
	f := newSMSFixture(t)
	wf := f.addWorkflow("wf-1", "tpl-1", "later", TriggerBookingCreated)
	wf.Delay = 30
	f.d = NewDispatcher(NewSMSAdapter(f.gateway), f.workflows, f.templates)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := f.d.Dispatch(ctx, TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	assert.ErrorIs(t, report.Outcomes[0].Err, context.Canceled)
	assert.Zero(t, f.gateway.count())
}

func TestDispatchSchedulesDelayedWorkflows(t *testing.T) {
	f := newSMSFixture(t)
	delayed := f.addWorkflow("wf-1", "tpl-1", "later", TriggerBookingCreated)
	delayed.Delay = 2 * 60 * 60
	f.addWorkflow("wf-2", "tpl-2", "now", TriggerBookingCreated)

	sched := &fakeScheduler{}
	f.d = NewDispatcher(NewSMSAdapter(f.gateway), f.workflows, f.templates,
		WithDeliveryLog(f.logs), WithScheduler(sched))

	// The task deadline is far shorter than the workflow delay.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	report := f.d.Dispatch(ctx, TriggerBookingCreated, sampleBooking(), "owner-1")

	require.NoError(t, ctx.Err())
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, StateScheduled, report.Outcomes[0].State)
	assert.Equal(t, StateSent, report.Outcomes[1].State)
	assert.Equal(t, 1, report.Count(StateScheduled))

	require.Len(t, sched.scheduled, 1)
	s := sched.scheduled[0]
	assert.Equal(t, 2*time.Hour, s.delay)
	assert.Equal(t, ChannelSMS, s.payload.Channel)
	assert.Equal(t, "wf-1", s.payload.WorkflowID)
	assert.Equal(t, "tpl-1", s.payload.TemplateID)
	assert.Equal(t, "+33612345678", s.payload.To)
	assert.Equal(t, "bk-1", s.payload.Booking.ID)

	// Only the immediate workflow reached the gateway and the statistics.
	require.Equal(t, 1, f.gateway.count())
	assert.Equal(t, "now", f.gateway.requests[0].Message)
	assert.Equal(t, []statCall{{WorkflowID: "wf-2", Success: true}}, f.workflows.stats)
}

func TestDispatchSchedulingFailure(t *testing.T) {
	f := newSMSFixture(t)
	wf := f.addWorkflow("wf-1", "tpl-1", "later", TriggerBookingCreated)
	wf.Delay = 60
	f.d = NewDispatcher(NewSMSAdapter(f.gateway), f.workflows, f.templates,
		WithScheduler(&fakeScheduler{err: errors.New("redis down")}))

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	assert.Equal(t, "scheduling failed", report.Outcomes[0].Reason)
	assert.Zero(t, f.gateway.count())
}

func TestDeliverScheduled(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", "Rappel {{client_firstname}}", TriggerBookingCreated)

	out := f.d.DeliverScheduled(context.Background(), &DeliveryPayload{
		Channel:    ChannelSMS,
		Trigger:    TriggerBookingCreated,
		OwnerID:    "owner-1",
		WorkflowID: "wf-1",
		TemplateID: "tpl-1",
		To:         "+33612345678",
		Booking:    sampleBooking(),
	})

	assert.Equal(t, StateSent, out.State)
	require.Equal(t, 1, f.gateway.count())
	assert.Equal(t, "Rappel Alice", f.gateway.requests[0].Message)
	require.Len(t, f.logs.logs, 1)
	assert.Equal(t, "wf-1", f.logs.logs[0].WorkflowID)
	assert.Equal(t, []statCall{{WorkflowID: "wf-1", Success: true}}, f.workflows.stats)
}

func TestDeliverScheduledTemplateDeleted(t *testing.T) {
	f := newSMSFixture(t)

	out := f.d.DeliverScheduled(context.Background(), &DeliveryPayload{
		Channel: ChannelSMS, WorkflowID: "wf-1", TemplateID: "gone", To: "+33612345678", Booking: sampleBooking(),
	})

	assert.Equal(t, StateSkipped, out.State)
	assert.Zero(t, f.gateway.count())
	assert.Empty(t, f.workflows.stats)
}

func TestDispatchPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		owner   string
		mutate  func(b *booking.Booking)
	}{
		{"missing owner", TriggerBookingCreated, "", func(*booking.Booking) {}},
		{"missing phone", TriggerBookingCreated, "owner-1", func(b *booking.Booking) { b.ClientPhone = "  " }},
		{"malformed phone", TriggerBookingCreated, "owner-1", func(b *booking.Booking) { b.ClientPhone = "abc" }},
		{"payment link created without link", TriggerPaymentLinkCreated, "owner-1", func(b *booking.Booking) { b.PaymentLink = "" }},
		{"payment link paid without stripe", TriggerPaymentLinkPaid, "owner-1", func(b *booking.Booking) {
			b.Transactions = []booking.Transaction{{Method: "cash", Status: "completed"}}
		}},
		{"unknown trigger", Trigger("booking_exploded"), "owner-1", func(*booking.Booking) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSMSFixture(t)
			f.addWorkflow("wf-1", "tpl-1", "Hello", tt.trigger)
			b := sampleBooking()
			tt.mutate(b)

			report := f.d.Dispatch(context.Background(), tt.trigger, b, tt.owner)

			assert.Error(t, report.Err)
			assert.Empty(t, report.Outcomes)
			assert.Zero(t, f.workflows.listCalls)
			assert.Zero(t, f.gateway.count())
		})
	}
}

func TestDispatchPaymentLinkPaidWithStripe(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", "Merci pour votre paiement de {{payment_amount}}€", TriggerPaymentLinkPaid)
	b := sampleBooking()
	b.Transactions = []booking.Transaction{{Method: "stripe", Status: "completed", Amount: 25}}

	report := f.d.Dispatch(context.Background(), TriggerPaymentLinkPaid, b, "owner-1")

	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Count(StateSent))
	assert.Equal(t, "Merci pour votre paiement de 25.00€", f.gateway.requests[0].Message)
}

func TestDispatchWorkflowLookupFailureAborts(t *testing.T) {
	f := newSMSFixture(t)
	f.workflows.listErr = errors.New("postgrest down")

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	assert.Error(t, report.Err)
	assert.Empty(t, report.Outcomes)
}

func TestTriggerNeverPanics(t *testing.T) {
	f := newSMSFixture(t)
	f.gateway.panics = true
	f.addWorkflow("wf-1", "tpl-1", "Hello", TriggerBookingCreated)

	assert.NotPanics(t, func() {
		f.d.Trigger(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	})

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, &booking.Booking{ID: "bk-2", ClientPhone: "0611111111"}, "owner-1")
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	assert.Equal(t, "panic", report.Outcomes[0].Reason)
}

func TestTriggerNilBooking(t *testing.T) {
	f := newSMSFixture(t)
	assert.NotPanics(t, func() {
		f.d.Trigger(context.Background(), TriggerBookingCreated, nil, "owner-1")
	})
}

func TestSMSRecipientLimiter(t *testing.T) {
	f := newSMSFixture(t, WithRecipientLimiter(fakeLimiter{allowed: false}))
	f.addWorkflow("wf-1", "tpl-1", "Hello", TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	assert.Zero(t, f.gateway.count())

	f = newSMSFixture(t, WithRecipientLimiter(fakeLimiter{err: errors.New("redis down")}))
	f.addWorkflow("wf-1", "tpl-1", "Hello", TriggerBookingCreated)
	report = f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	assert.Equal(t, 1, report.Count(StateSent))
}

func TestEmailDispatch(t *testing.T) {
	workflows := &fakeWorkflowStore{workflows: []*Workflow{{
		ID: "wf-mail", UserID: "owner-1", Channel: ChannelEmail,
		Trigger: TriggerPaymentLinkCreated, TemplateID: "tpl-mail", Active: true,
	}}}
	templates := &fakeTemplateStore{templates: map[string]*Template{
		"tpl-mail": {
			ID: "tpl-mail", Channel: ChannelEmail,
			Subject: "Votre lien de paiement, {{client_firstname}}",
			Content: "Réglez {{remaining_amount}}€ ici : {{payment_link}}",
		},
	}}
	sender := &fakeEmailSender{}
	logs := &fakeLogStore{}
	d := NewDispatcher(NewEmailAdapter(sender, fakeLayout{}), workflows, templates, WithDeliveryLog(logs))

	report := d.Dispatch(context.Background(), TriggerPaymentLinkCreated, sampleBooking(), "owner-1")

	require.NoError(t, report.Err)
	require.Len(t, sender.sent, 1)
	mail := sender.sent[0]
	assert.Equal(t, "alice@example.com", mail.To)
	assert.Equal(t, "Votre lien de paiement, Alice", mail.Subject)
	assert.Equal(t, "Réglez 50.00€ ici : https://pay.example.com/abc", mail.Text)
	assert.Contains(t, mail.HTML, "<h1>Votre lien de paiement, Alice</h1>")

	require.Len(t, logs.logs, 1)
	assert.Equal(t, ChannelEmail, logs.logs[0].Channel)
	assert.Equal(t, "em_1", logs.logs[0].ProviderID)
}

func TestEmailRecipientRequired(t *testing.T) {
	a := NewEmailAdapter(&fakeEmailSender{}, nil)

	_, err := a.Recipient(TriggerBookingCreated, &booking.Booking{ID: "bk"})
	assert.Error(t, err)

	_, err = a.Recipient(TriggerBookingCreated, &booking.Booking{ID: "bk", ClientEmail: "not-an-email"})
	assert.Error(t, err)

	to, err := a.Recipient(TriggerBookingCreated, &booking.Booking{ClientEmail: " Alice <alice@example.com> "})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", to)
}

func TestEngineRoutesByChannel(t *testing.T) {
	f := newSMSFixture(t)
	f.addWorkflow("wf-1", "tpl-1", "Hello", TriggerBookingCreated)
	engine := NewEngine(f.d, nil)

	assert.Equal(t, []Channel{ChannelSMS}, engine.Channels())
	engine.TriggerWorkflow(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	assert.Zero(t, f.gateway.count())

	engine.TriggerSMSWorkflow(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")
	assert.Equal(t, 1, f.gateway.count())
}

func TestDispatchGatewayNotConfiguredLeavesNoTrace(t *testing.T) {
	f := newSMSFixture(t)
	f.gateway.err = common.NewConfigurationError("SMS not enabled for this account")
	f.addWorkflow("wf-1", "tpl-1", "Hello", TriggerBookingCreated)

	report := f.d.Dispatch(context.Background(), TriggerBookingCreated, sampleBooking(), "owner-1")

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StateSkipped, report.Outcomes[0].State)
	assert.Empty(t, f.logs.logs)
	assert.Empty(t, f.workflows.stats)
}
