package workflow

import (
	"context"
	"fmt"

	"bookingfast/internal/domain/booking"
)

// Matcher selects the workflows that should run for an event.
type Matcher struct {
	store WorkflowStore
}

// NewMatcher creates a new workflow matcher.
func NewMatcher(store WorkflowStore) *Matcher {
	return &Matcher{store: store}
}

// FindMatching returns every active workflow of the owner for the trigger
// whose conditions hold for the booking, in store order.
func (m *Matcher) FindMatching(ctx context.Context, channel Channel, trigger Trigger, ownerID string, b *booking.Booking) ([]*Workflow, error) {
	candidates, err := m.store.ListActive(ctx, channel, ownerID, trigger)
	if err != nil {
		return nil, fmt.Errorf("loading %s workflows for %s: %w", channel, trigger, err)
	}

	matched := make([]*Workflow, 0, len(candidates))
	for _, wf := range candidates {
		if wf == nil || !wf.Active || wf.Trigger != trigger {
			continue
		}
		if Matches(wf.Conditions, b) {
			matched = append(matched, wf)
		}
	}
	return matched, nil
}
