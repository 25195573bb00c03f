package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bookingfast/internal/domain/workflow"

	"github.com/supabase-community/postgrest-go"
)

// logRow is the internal representation for Supabase PostgREST insert/update
// of sms_logs and email_logs. The recipient column is to_phone for SMS and
// to_email for email.
type logRow struct {
	ID           string  `json:"id,omitempty"`
	UserID       string  `json:"user_id"`
	WorkflowID   *string `json:"workflow_id,omitempty"`
	BookingID    *string `json:"booking_id,omitempty"`
	ToPhone      *string `json:"to_phone,omitempty"`
	ToEmail      *string `json:"to_email,omitempty"`
	Subject      *string `json:"subject,omitempty"`
	Content      string  `json:"content"`
	Status       string  `json:"status"`
	ProviderID   *string `json:"provider_message_id,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

func toLogRow(l *workflow.DeliveryLog) logRow {
	row := logRow{
		UserID:       l.UserID,
		WorkflowID:   optional(l.WorkflowID),
		BookingID:    optional(l.BookingID),
		Subject:      optional(l.Subject),
		Content:      l.Content,
		Status:       string(l.Status),
		ProviderID:   optional(l.ProviderID),
		ErrorMessage: optional(l.ErrorMessage),
	}
	if !l.CreatedAt.IsZero() {
		row.CreatedAt = l.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if l.Channel == workflow.ChannelSMS {
		row.ToPhone = optional(l.Recipient)
	} else {
		row.ToEmail = optional(l.Recipient)
	}
	return row
}

func (r *logRow) toLog(channel workflow.Channel) *workflow.DeliveryLog {
	recipient := deref(r.ToEmail)
	if channel == workflow.ChannelSMS {
		recipient = deref(r.ToPhone)
	}
	return &workflow.DeliveryLog{
		ID:           r.ID,
		Channel:      channel,
		UserID:       r.UserID,
		WorkflowID:   deref(r.WorkflowID),
		BookingID:    deref(r.BookingID),
		Recipient:    recipient,
		Subject:      deref(r.Subject),
		Content:      r.Content,
		Status:       workflow.DeliveryStatus(r.Status),
		ProviderID:   deref(r.ProviderID),
		ErrorMessage: deref(r.ErrorMessage),
		CreatedAt:    parseTime(r.CreatedAt),
	}
}

// CreateLog inserts a delivery log record and fills in the generated id.
func (s *SupabaseStore) CreateLog(ctx context.Context, l *workflow.DeliveryLog) error {
	table, err := s.table(s.tables.Logs, l.Channel)
	if err != nil {
		return err
	}

	data, _, err := s.client.From(table).Insert(toLogRow(l), false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}

	var results []logRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}
	if len(results) > 0 {
		l.ID = results[0].ID
		if t := parseTime(results[0].CreatedAt); !t.IsZero() {
			l.CreatedAt = t
		}
	}
	return nil
}

// ListLogs retrieves delivery logs of one channel, newest first.
func (s *SupabaseStore) ListLogs(ctx context.Context, filter workflow.ListFilter) ([]*workflow.DeliveryLog, int, error) {
	table, err := s.table(s.tables.Logs, filter.Channel)
	if err != nil {
		return nil, 0, err
	}
	filter.Normalize()
	offset := (filter.Page - 1) * filter.PageSize

	query := s.client.From(table).Select("*", "exact", false)
	if filter.Status != "" {
		query = query.Eq("status", filter.Status)
	}
	if filter.WorkflowID != "" {
		query = query.Eq("workflow_id", filter.WorkflowID)
	}
	if filter.BookingID != "" {
		query = query.Eq("booking_id", filter.BookingID)
	}
	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	query = query.Range(offset, offset+filter.PageSize-1, "")

	data, count, err := query.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing delivery logs: %w", err)
	}

	var rows []logRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("parsing delivery logs: %w", err)
	}

	logs := make([]*workflow.DeliveryLog, len(rows))
	for i := range rows {
		logs[i] = rows[i].toLog(filter.Channel)
	}
	return logs, int(count), nil
}

// UpdateLogStatus updates the log matching the provider message id.
func (s *SupabaseStore) UpdateLogStatus(ctx context.Context, channel workflow.Channel, providerID string, status workflow.DeliveryStatus, errMsg string) error {
	table, err := s.table(s.tables.Logs, channel)
	if err != nil {
		return err
	}

	update := map[string]any{"status": string(status)}
	if errMsg != "" {
		update["error_message"] = errMsg
	}

	_, _, err = s.client.From(table).Update(update, "", "").Eq("provider_message_id", providerID).Execute()
	if err != nil {
		return fmt.Errorf("updating delivery status: %w", err)
	}
	return nil
}
