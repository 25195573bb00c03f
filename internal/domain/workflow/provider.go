package workflow

import (
	"context"

	"bookingfast/internal/domain/booking"
)

// Adapter is a delivery channel. The dispatcher drives it through
// Recipient (preconditions), Validate (rendered message constraints) and
// Send (the outbound call).
type Adapter interface {
	// Channel returns which delivery channel this adapter handles.
	Channel() Channel

	// Recipient checks channel and trigger preconditions and returns the
	// normalized destination address.
	Recipient(trigger Trigger, b *booking.Booking) (string, error)

	// Validate rejects a rendered message that must not be sent.
	Validate(msg *Message) error

	// Send delivers the message and returns the provider's message ID.
	Send(ctx context.Context, msg *Message) (string, error)
}

// SMSGateway sends a text message through the remote SMS function.
// Implementations live in infra/sms/.
type SMSGateway interface {
	SendSMS(ctx context.Context, req *SMSRequest) (*SMSResponse, error)
}

// SMSRequest is the body posted to the SMS gateway.
type SMSRequest struct {
	UserID     string `json:"user_id"`
	ToPhone    string `json:"to_phone"`
	Message    string `json:"message"`
	WorkflowID string `json:"workflow_id,omitempty"`
	BookingID  string `json:"booking_id,omitempty"`
}

// SMSResponse is the gateway's success payload.
type SMSResponse struct {
	MessageSID string `json:"message_sid"`
	Status     string `json:"status"`
}

// EmailSender delivers a rendered email. Implementations live in infra/email/.
type EmailSender interface {
	// SendEmail returns the provider's message ID.
	SendEmail(ctx context.Context, to, subject, html, text string) (string, error)
}

// LayoutRenderer wraps a plain-text body into the HTML email layout.
// Implementations live in infra/template/.
type LayoutRenderer interface {
	RenderLayout(subject, body string) (string, error)
}

// RecipientRateLimiter defines the contract for per-recipient rate limiting.
// Implementations live in infra/ratelimit/.
type RecipientRateLimiter interface {
	// Allow checks whether a message can be sent to the given recipient.
	// Returns true if the message is allowed, false if rate limited.
	Allow(ctx context.Context, recipient string) (bool, error)
}
