package store

import (
	"context"
	"encoding/json"
	"fmt"

	"bookingfast/internal/domain/booking"

	"github.com/supabase-community/postgrest-go"
)

// bookingColumns embeds the referenced service through its foreign key.
const bookingColumns = "*,service:services(id,name,description,price_ttc,unit_name)"

// ListBetween retrieves non-cancelled bookings in a date range across owners.
// Transactions are stored on the booking row as a JSON array.
func (s *SupabaseStore) ListBetween(ctx context.Context, fromDate, toDate string) ([]*booking.Booking, error) {
	data, _, err := s.client.From(s.tables.Bookings).
		Select(bookingColumns, "", false).
		Gte("date", fromDate).
		Lte("date", toDate).
		Neq("booking_status", string(booking.StatusCancelled)).
		Order("date", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}

	var bookings []*booking.Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, fmt.Errorf("parsing bookings: %w", err)
	}
	return bookings, nil
}
