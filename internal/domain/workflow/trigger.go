package workflow

import (
	"encoding/json"
	"fmt"
)

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ParseChannel converts a raw string into a known Channel.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelSMS:
		return c, nil
	}
	return "", fmt.Errorf("unknown channel: %q", s)
}

// UnmarshalJSON rejects unknown channels.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseChannel(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Trigger is a domain event a workflow can react to.
type Trigger string

const (
	TriggerBookingCreated       Trigger = "booking_created"
	TriggerBookingUpdated       Trigger = "booking_updated"
	TriggerBookingCancelled     Trigger = "booking_cancelled"
	TriggerBookingStatusChanged Trigger = "booking_status_changed"
	TriggerPaymentLinkCreated   Trigger = "payment_link_created"
	TriggerPaymentLinkPaid      Trigger = "payment_link_paid"
	TriggerPaymentCompleted     Trigger = "payment_completed"
	TriggerReminder24h          Trigger = "reminder_24h"
	TriggerReminder1h           Trigger = "reminder_1h"
	TriggerFollowUp             Trigger = "follow_up"
)

var validTriggers = map[Trigger]bool{
	TriggerBookingCreated:       true,
	TriggerBookingUpdated:       true,
	TriggerBookingCancelled:     true,
	TriggerBookingStatusChanged: true,
	TriggerPaymentLinkCreated:   true,
	TriggerPaymentLinkPaid:      true,
	TriggerPaymentCompleted:     true,
	TriggerReminder24h:          true,
	TriggerReminder1h:           true,
	TriggerFollowUp:             true,
}

// ParseTrigger converts a raw string into a known Trigger.
func ParseTrigger(s string) (Trigger, error) {
	t := Trigger(s)
	if !validTriggers[t] {
		return "", fmt.Errorf("unknown trigger: %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known triggers.
func (t Trigger) Valid() bool {
	return validTriggers[t]
}

// UnmarshalJSON rejects unknown triggers.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTrigger(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
