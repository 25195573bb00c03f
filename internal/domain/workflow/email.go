package workflow

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"bookingfast/internal/common"
	"bookingfast/internal/domain/booking"
)

var _ Adapter = (*EmailAdapter)(nil)

// EmailAdapter delivers workflow messages by email. It has no length limit.
type EmailAdapter struct {
	sender EmailSender
	layout LayoutRenderer
}

// NewEmailAdapter creates an email channel adapter. layout may be nil, in
// which case the plain-text body is sent as-is.
func NewEmailAdapter(sender EmailSender, layout LayoutRenderer) *EmailAdapter {
	return &EmailAdapter{sender: sender, layout: layout}
}

func (a *EmailAdapter) Channel() Channel { return ChannelEmail }

func (a *EmailAdapter) Recipient(_ Trigger, b *booking.Booking) (string, error) {
	raw := strings.TrimSpace(b.ClientEmail)
	if raw == "" {
		return "", common.NewValidationError("booking %s has no client email", b.ID)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", common.NewValidationError("invalid client email %q", raw)
	}
	return addr.Address, nil
}

func (a *EmailAdapter) Validate(msg *Message) error {
	if strings.TrimSpace(msg.Body) == "" {
		return common.NewValidationError("email body is empty")
	}
	return nil
}

func (a *EmailAdapter) Send(ctx context.Context, msg *Message) (string, error) {
	subject := msg.Subject
	if subject == "" {
		subject = "Notification"
	}

	html := msg.Body
	if a.layout != nil {
		var err error
		if html, err = a.layout.RenderLayout(subject, msg.Body); err != nil {
			return "", fmt.Errorf("rendering email layout: %w", err)
		}
	}

	return a.sender.SendEmail(ctx, msg.To, subject, html, msg.Body)
}
