package store

import (
	"context"
	"encoding/json"
	"fmt"

	"bookingfast/internal/domain/workflow"
)

type templateRow struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Subject     *string `json:"subject"`
	Content     string  `json:"content"`
}

// GetTemplate retrieves a template by id. Returns nil, nil if no record is found.
func (s *SupabaseStore) GetTemplate(ctx context.Context, channel workflow.Channel, id string) (*workflow.Template, error) {
	if id == "" {
		return nil, nil
	}
	table, err := s.table(s.tables.Templates, channel)
	if err != nil {
		return nil, err
	}

	data, _, err := s.client.From(table).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching template: %w", err)
	}

	var rows []templateRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	r := rows[0]
	return &workflow.Template{
		ID:          r.ID,
		UserID:      r.UserID,
		Channel:     channel,
		Name:        r.Name,
		Description: deref(r.Description),
		Subject:     deref(r.Subject),
		Content:     r.Content,
	}, nil
}
