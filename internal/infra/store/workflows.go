package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"bookingfast/internal/domain/workflow"

	"github.com/supabase-community/postgrest-go"
)

// statsRPC bumps attempt_count, bumps sent_count on success and recomputes
// success_rate in one statement. See supabase/migrations.
const statsRPC = "record_workflow_delivery"

// workflowRow mirrors the email_workflows / sms_workflows tables. Trigger and
// conditions are decoded separately so one bad row does not hide the others.
type workflowRow struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Name         string          `json:"name"`
	Description  *string         `json:"description"`
	Trigger      string          `json:"trigger"`
	TemplateID   string          `json:"template_id"`
	Delay        int             `json:"delay"`
	Active       bool            `json:"active"`
	Conditions   json.RawMessage `json:"conditions"`
	SentCount    int             `json:"sent_count"`
	AttemptCount int             `json:"attempt_count"`
	SuccessRate  float64         `json:"success_rate"`
}

func (r *workflowRow) toWorkflow(channel workflow.Channel) (*workflow.Workflow, error) {
	trigger, err := workflow.ParseTrigger(r.Trigger)
	if err != nil {
		return nil, err
	}

	var conditions []workflow.Condition
	if len(r.Conditions) > 0 && string(r.Conditions) != "null" {
		if err := json.Unmarshal(r.Conditions, &conditions); err != nil {
			return nil, fmt.Errorf("decoding conditions: %w", err)
		}
	}

	return &workflow.Workflow{
		ID:           r.ID,
		UserID:       r.UserID,
		Channel:      channel,
		Name:         r.Name,
		Description:  deref(r.Description),
		Trigger:      trigger,
		TemplateID:   r.TemplateID,
		Delay:        r.Delay,
		Active:       r.Active,
		Conditions:   conditions,
		SentCount:    r.SentCount,
		AttemptCount: r.AttemptCount,
		SuccessRate:  r.SuccessRate,
	}, nil
}

// ListActive retrieves the owner's active workflows for a trigger, oldest first.
// Rows with an unknown trigger, field or operator are logged and left out.
func (s *SupabaseStore) ListActive(ctx context.Context, channel workflow.Channel, ownerID string, trigger workflow.Trigger) ([]*workflow.Workflow, error) {
	table, err := s.table(s.tables.Workflows, channel)
	if err != nil {
		return nil, err
	}

	data, _, err := s.client.From(table).
		Select("*", "", false).
		Eq("user_id", ownerID).
		Eq("trigger", string(trigger)).
		Eq("active", "true").
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching workflows: %w", err)
	}

	var rows []workflowRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing workflows: %w", err)
	}

	workflows := make([]*workflow.Workflow, 0, len(rows))
	for i := range rows {
		wf, err := rows[i].toWorkflow(channel)
		if err != nil {
			slog.Error("invalid workflow definition",
				"workflow_id", rows[i].ID,
				"channel", channel,
				"error", err,
			)
			continue
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// RecordDelivery calls the statistics RPC with the outcome of one attempt.
func (s *SupabaseStore) RecordDelivery(ctx context.Context, channel workflow.Channel, workflowID string, success bool) error {
	table, err := s.table(s.tables.Workflows, channel)
	if err != nil {
		return err
	}

	body := s.rpc.Rpc(statsRPC, "", map[string]any{
		"p_table":       table,
		"p_workflow_id": workflowID,
		"p_success":     success,
	})
	if err := checkRPC(statsRPC, body); err != nil {
		return err
	}
	if _, err := strconv.Atoi(strings.TrimSpace(body)); err != nil {
		return fmt.Errorf("rpc %s: unexpected response %q", statsRPC, body)
	}
	return nil
}
