package workflow

import (
	"context"

	"bookingfast/internal/domain/booking"
)

// WorkflowStore defines the contract for reading workflows and updating
// their send statistics. Implementations live in infra/store/ (e.g., Supabase).
type WorkflowStore interface {
	// ListActive returns the owner's active workflows for the trigger on
	// the given channel, in store order.
	ListActive(ctx context.Context, channel Channel, ownerID string, trigger Trigger) ([]*Workflow, error)

	// RecordDelivery updates sent_count and success_rate atomically on the
	// store side. sent_count only grows when success is true.
	RecordDelivery(ctx context.Context, channel Channel, workflowID string, success bool) error
}

// TemplateStore defines the contract for loading message templates.
type TemplateStore interface {
	// GetTemplate returns the template, or nil, nil if it does not exist.
	GetTemplate(ctx context.Context, channel Channel, id string) (*Template, error)
}

// DeliveryLogStore persists one record per send attempt.
type DeliveryLogStore interface {
	// CreateLog inserts a delivery log record.
	CreateLog(ctx context.Context, log *DeliveryLog) error

	// ListLogs retrieves delivery logs with pagination and filtering.
	ListLogs(ctx context.Context, filter ListFilter) ([]*DeliveryLog, int, error)

	// UpdateLogStatus updates a log found by provider message id (for
	// provider status callbacks).
	UpdateLogStatus(ctx context.Context, channel Channel, providerID string, status DeliveryStatus, errMsg string) error
}

// BookingStore lists bookings for the reminder scanner.
type BookingStore interface {
	// ListBetween returns non-cancelled bookings with fromDate <= date <= toDate
	// (YYYY-MM-DD, inclusive) across all owners.
	ListBetween(ctx context.Context, fromDate, toDate string) ([]*booking.Booking, error)
}
