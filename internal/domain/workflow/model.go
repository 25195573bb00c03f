package workflow

import "time"

// Workflow is a user-authored rule: when Trigger fires for one of the
// owner's bookings and Conditions hold, send TemplateID on Channel.
type Workflow struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Channel      Channel     `json:"channel"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Trigger      Trigger     `json:"trigger"`
	TemplateID   string      `json:"template_id"`
	Delay        int         `json:"delay"` // seconds
	Active       bool        `json:"active"`
	Conditions   []Condition `json:"conditions,omitempty"`
	SentCount    int         `json:"sent_count"`
	AttemptCount int         `json:"attempt_count"`
	SuccessRate  float64     `json:"success_rate"`
}

// DelayDuration returns the configured delay, never negative.
func (w *Workflow) DelayDuration() time.Duration {
	if w.Delay <= 0 {
		return 0
	}
	return time.Duration(w.Delay) * time.Second
}

// Template is the message content a workflow sends. Subject is only used
// by email templates.
type Template struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Channel     Channel `json:"channel"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Subject     string  `json:"subject,omitempty"`
	Content     string  `json:"content"`
}

// DeliveryStatus is the state of a recorded delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// DeliveryLog is the persisted record of one send attempt.
type DeliveryLog struct {
	ID           string         `json:"id"`
	Channel      Channel        `json:"channel"`
	UserID       string         `json:"user_id"`
	WorkflowID   string         `json:"workflow_id"`
	BookingID    string         `json:"booking_id"`
	Recipient    string         `json:"recipient"`
	Subject      string         `json:"subject,omitempty"`
	Content      string         `json:"content"`
	Status       DeliveryStatus `json:"status"`
	ProviderID   string         `json:"provider_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Message is a rendered notification ready for a channel adapter.
type Message struct {
	OwnerID    string
	WorkflowID string
	BookingID  string
	To         string
	Subject    string
	Body       string
}

// ListFilter defines pagination and filtering options for delivery logs.
type ListFilter struct {
	Channel    Channel `form:"channel" binding:"required,oneof=email sms"`
	Page       int     `form:"page"`
	PageSize   int     `form:"page_size"`
	Status     string  `form:"status"`
	WorkflowID string  `form:"workflow_id"`
	BookingID  string  `form:"booking_id"`
}

// Normalize applies paging defaults.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// ListResponse wraps a paginated list of delivery logs.
type ListResponse struct {
	Logs     []*DeliveryLog `json:"logs"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}
