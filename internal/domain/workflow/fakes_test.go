package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bookingfast/internal/domain/booking"
)

type statCall struct {
	WorkflowID string
	Success    bool
}

type fakeWorkflowStore struct {
	mu        sync.Mutex
	workflows []*Workflow
	listErr   error
	listCalls int
	stats     []statCall
}

func (s *fakeWorkflowStore) ListActive(_ context.Context, channel Channel, ownerID string, trigger Trigger) ([]*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*Workflow
	for _, wf := range s.workflows {
		if wf.Channel == channel && wf.UserID == ownerID && wf.Trigger == trigger && wf.Active {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *fakeWorkflowStore) RecordDelivery(_ context.Context, _ Channel, workflowID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, statCall{WorkflowID: workflowID, Success: success})
	return nil
}

type fakeTemplateStore struct {
	templates map[string]*Template
	errs      map[string]error
}

func (s *fakeTemplateStore) GetTemplate(_ context.Context, _ Channel, id string) (*Template, error) {
	if err, ok := s.errs[id]; ok {
		return nil, err
	}
	return s.templates[id], nil
}

type fakeLogStore struct {
	mu   sync.Mutex
	logs []*DeliveryLog
}

func (s *fakeLogStore) CreateLog(_ context.Context, log *DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *fakeLogStore) ListLogs(_ context.Context, filter ListFilter) ([]*DeliveryLog, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DeliveryLog
	for _, l := range s.logs {
		if l.Channel == filter.Channel {
			out = append(out, l)
		}
	}
	return out, len(out), nil
}

func (s *fakeLogStore) UpdateLogStatus(_ context.Context, channel Channel, providerID string, status DeliveryStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.Channel == channel && l.ProviderID == providerID {
			l.Status = status
			l.ErrorMessage = errMsg
			return nil
		}
	}
	return errors.New("log not found")
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []*SMSRequest
	err      error
	panics   bool
}

func (g *fakeGateway) SendSMS(_ context.Context, req *SMSRequest) (*SMSResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.panics {
		panic("gateway exploded")
	}
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &SMSResponse{MessageSID: fmt.Sprintf("SM%d", len(g.requests)), Status: "queued"}, nil
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type sentEmail struct {
	To, Subject, HTML, Text string
}

type fakeEmailSender struct {
	sent []sentEmail
	err  error
}

func (s *fakeEmailSender) SendEmail(_ context.Context, to, subject, html, text string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentEmail{to, subject, html, text})
	return fmt.Sprintf("em_%d", len(s.sent)), nil
}

type fakeLayout struct{}

func (fakeLayout) RenderLayout(subject, body string) (string, error) {
	return "<h1>" + subject + "</h1><p>" + body + "</p>", nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (l fakeLimiter) Allow(context.Context, string) (bool, error) { return l.allowed, l.err }

type fakeEnqueuer struct {
	mu     sync.Mutex
	tasks  []*DispatchPayload
	err    error
	failOn Channel
}

func (e *fakeEnqueuer) EnqueueDispatch(_ context.Context, p *DispatchPayload) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	if e.failOn != "" && p.Channel == e.failOn {
		return "", errors.New("queue rejected " + string(p.Channel))
	}
	e.tasks = append(e.tasks, p)
	return fmt.Sprintf("task-%d", len(e.tasks)), nil
}

func (e *fakeEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

type scheduledDelivery struct {
	payload *DeliveryPayload
	delay   time.Duration
}

type fakeScheduler struct {
	scheduled []scheduledDelivery
	err       error
}

func (s *fakeScheduler) ScheduleDelivery(_ context.Context, p *DeliveryPayload, delay time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.scheduled = append(s.scheduled, scheduledDelivery{payload: p, delay: delay})
	return fmt.Sprintf("deliver-%d", len(s.scheduled)), nil
}

type fakeBookingStore struct {
	bookings []*booking.Booking
	from, to string
	err      error
}

func (s *fakeBookingStore) ListBetween(_ context.Context, from, to string) ([]*booking.Booking, error) {
	s.from, s.to = from, to
	if s.err != nil {
		return nil, s.err
	}
	return s.bookings, nil
}
