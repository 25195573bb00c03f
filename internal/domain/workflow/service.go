package workflow

import (
	"context"
	"log/slog"

	"bookingfast/internal/common"
	"bookingfast/internal/domain/booking"
)

// TriggerRequest is the API payload raised by booking-management operations
// after their own write has succeeded.
type TriggerRequest struct {
	Trigger  string           `json:"trigger" binding:"required"`
	OwnerID  string           `json:"owner_id"`
	Channels []string         `json:"channels"`
	Booking  *booking.Booking `json:"booking" binding:"required"`
}

// EnqueuedTask identifies the dispatch task created for one channel.
type EnqueuedTask struct {
	Channel Channel `json:"channel"`
	TaskID  string  `json:"task_id"`
}

// TriggerResponse is returned once the event has been handed to the worker.
// Status is "partial" when some channels could not be enqueued; those are
// listed in Failed.
type TriggerResponse struct {
	Trigger Trigger        `json:"trigger"`
	Status  string         `json:"status"`
	Tasks   []EnqueuedTask `json:"tasks"`
	Failed  []Channel      `json:"failed,omitempty"`
}

// Service accepts events and serves the delivery log.
// In the async flow: validate → pick channels → enqueue one task per channel.
type Service struct {
	enqueuer Enqueuer
	logs     DeliveryLogStore
	channels []Channel
}

// NewService creates a new workflow service. channels are the defaults used
// when a request names none.
func NewService(enqueuer Enqueuer, logs DeliveryLogStore, channels ...Channel) *Service {
	if len(channels) == 0 {
		channels = []Channel{ChannelEmail, ChannelSMS}
	}
	return &Service{enqueuer: enqueuer, logs: logs, channels: channels}
}

// Publish validates the event and enqueues a dispatch task per channel.
// A request without owner is accepted and dropped. A QueueError is returned
// only when no channel could be enqueued.
func (s *Service) Publish(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	trigger, err := ParseTrigger(req.Trigger)
	if err != nil {
		return nil, common.NewValidationError("%s", err.Error())
	}
	if req.Booking == nil {
		return nil, common.NewValidationError("booking is required")
	}

	channels := s.channels
	if len(req.Channels) > 0 {
		channels = make([]Channel, 0, len(req.Channels))
		for _, raw := range req.Channels {
			c, err := ParseChannel(raw)
			if err != nil {
				return nil, common.NewValidationError("%s", err.Error())
			}
			channels = append(channels, c)
		}
	}

	resp := &TriggerResponse{Trigger: trigger, Status: "queued", Tasks: []EnqueuedTask{}}
	if req.OwnerID == "" {
		slog.Info("event without owner ignored", "trigger", trigger, "booking_id", req.Booking.ID)
		resp.Status = "ignored"
		return resp, nil
	}

	var lastErr error
	for _, c := range channels {
		taskID, err := s.enqueuer.EnqueueDispatch(ctx, &DispatchPayload{
			Channel: c,
			Trigger: trigger,
			OwnerID: req.OwnerID,
			Booking: req.Booking,
		})
		if err != nil {
			slog.Error("failed to enqueue dispatch",
				"channel", c,
				"trigger", trigger,
				"booking_id", req.Booking.ID,
				"error", err,
			)
			resp.Failed = append(resp.Failed, c)
			lastErr = err
			continue
		}
		resp.Tasks = append(resp.Tasks, EnqueuedTask{Channel: c, TaskID: taskID})
	}
	if len(resp.Tasks) == 0 && lastErr != nil {
		return nil, &common.QueueError{Err: lastErr}
	}
	if len(resp.Failed) > 0 {
		resp.Status = "partial"
	}

	slog.Info("workflow event enqueued",
		"trigger", trigger,
		"booking_id", req.Booking.ID,
		"owner_id", req.OwnerID,
		"tasks", len(resp.Tasks),
		"failed", len(resp.Failed),
	)
	return resp, nil
}

// ListLogs retrieves delivery logs with pagination and filtering.
func (s *Service) ListLogs(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	filter.Normalize()
	logs, total, err := s.logs.ListLogs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListResponse{Logs: logs, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// smsStatuses maps gateway callback statuses to delivery statuses.
// Intermediate statuses (queued, accepted, sending) are not tracked.
var smsStatuses = map[string]DeliveryStatus{
	"sent":        DeliverySent,
	"delivered":   DeliveryDelivered,
	"failed":      DeliveryFailed,
	"undelivered": DeliveryFailed,
}

// HandleSMSStatus applies a gateway status callback to the SMS log. It
// reports false when the status is not tracked.
func (s *Service) HandleSMSStatus(ctx context.Context, messageSID, providerStatus, errorCode string) (bool, error) {
	if messageSID == "" {
		return false, common.NewValidationError("message sid is required")
	}
	status, ok := smsStatuses[providerStatus]
	if !ok {
		return false, nil
	}

	var errMsg string
	if status == DeliveryFailed && errorCode != "" {
		errMsg = "provider error code " + errorCode
	}
	if err := s.logs.UpdateLogStatus(ctx, ChannelSMS, messageSID, status, errMsg); err != nil {
		return false, err
	}

	slog.Info("sms status updated", "message_sid", messageSID, "status", status)
	return true, nil
}

// HandleEmailEvent applies a Resend webhook event to the email log.
func (s *Service) HandleEmailEvent(ctx context.Context, emailID string, status DeliveryStatus, reason string) error {
	if emailID == "" {
		return common.NewValidationError("email id is required")
	}
	if err := s.logs.UpdateLogStatus(ctx, ChannelEmail, emailID, status, reason); err != nil {
		return err
	}
	slog.Info("email status updated", "email_id", emailID, "status", status)
	return nil
}
