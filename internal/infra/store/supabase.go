package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bookingfast/internal/domain/workflow"

	supa "github.com/supabase-community/supabase-go"
)

// Tables names the PostgREST tables used for each channel.
type Tables struct {
	Workflows map[workflow.Channel]string
	Templates map[workflow.Channel]string
	Logs      map[workflow.Channel]string
	Bookings  string
}

// DefaultTables matches the BookingFast schema.
func DefaultTables() Tables {
	return Tables{
		Workflows: map[workflow.Channel]string{
			workflow.ChannelEmail: "email_workflows",
			workflow.ChannelSMS:   "sms_workflows",
		},
		Templates: map[workflow.Channel]string{
			workflow.ChannelEmail: "email_templates",
			workflow.ChannelSMS:   "sms_templates",
		},
		Logs: map[workflow.Channel]string{
			workflow.ChannelEmail: "email_logs",
			workflow.ChannelSMS:   "sms_logs",
		},
		Bookings: "bookings",
	}
}

var (
	_ workflow.WorkflowStore    = (*SupabaseStore)(nil)
	_ workflow.TemplateStore    = (*SupabaseStore)(nil)
	_ workflow.DeliveryLogStore = (*SupabaseStore)(nil)
	_ workflow.BookingStore     = (*SupabaseStore)(nil)
)

// rpcCaller is the subset of *supa.Client used for stored procedures.
type rpcCaller interface {
	Rpc(name, count string, rpcBody interface{}) string
}

// SupabaseStore implements the workflow persistence contracts using the
// Supabase Go SDK.
type SupabaseStore struct {
	client *supa.Client
	rpc    rpcCaller
	tables Tables
}

// NewSupabaseStore creates a new Supabase-backed store.
func NewSupabaseStore(supabaseURL, serviceKey string) (*SupabaseStore, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseStore{client: client, rpc: client, tables: DefaultTables()}, nil
}

func (s *SupabaseStore) table(m map[workflow.Channel]string, channel workflow.Channel) (string, error) {
	name, ok := m[channel]
	if !ok {
		return "", fmt.Errorf("no table for channel %q", channel)
	}
	return name, nil
}

// rpcError is the PostgREST error body.
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// checkRPC interprets the raw body returned by an RPC call. The SDK does
// not surface transport errors, so an empty body is treated as a failure.
func checkRPC(name, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("rpc %s: empty response", name)
	}
	if strings.HasPrefix(body, "{") {
		var e rpcError
		if err := json.Unmarshal([]byte(body), &e); err == nil && e.Message != "" {
			return fmt.Errorf("rpc %s: %s (%s)", name, e.Message, e.Code)
		}
	}
	return nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Time{}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
