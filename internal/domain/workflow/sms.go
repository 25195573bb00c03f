package workflow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"bookingfast/internal/common"
	"bookingfast/internal/domain/booking"
)

const (
	DefaultCountryCode  = "33"
	DefaultSMSMaxLength = 160
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// NormalizePhone converts a local or international number to E.164.
// Whitespace is stripped; a leading 0 is replaced by +countryCode; a number
// already starting with countryCode gets a +; anything else is prefixed
// with +countryCode. The result must be a valid E.164 number.
func NormalizePhone(raw, countryCode string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if phone == "" {
		return "", common.NewValidationError("phone number is empty")
	}

	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" {
		cc = DefaultCountryCode
	}

	switch {
	case strings.HasPrefix(phone, "+"):
	case strings.HasPrefix(phone, "0"):
		phone = "+" + cc + phone[1:]
	case strings.HasPrefix(phone, cc):
		phone = "+" + phone
	default:
		phone = "+" + cc + phone
	}

	if !e164.MatchString(phone) {
		return "", common.NewValidationError("invalid phone number: %q", raw)
	}
	return phone, nil
}

var _ Adapter = (*SMSAdapter)(nil)

// SMSAdapter delivers workflow messages through the SMS gateway.
type SMSAdapter struct {
	gateway     SMSGateway
	limiter     RecipientRateLimiter
	countryCode string
	maxLength   int
}

// SMSOption configures an SMSAdapter.
type SMSOption func(*SMSAdapter)

// WithCountryCode sets the country code assumed for local-format numbers.
func WithCountryCode(cc string) SMSOption {
	return func(a *SMSAdapter) { a.countryCode = cc }
}

// WithMaxLength overrides the SMS length limit.
func WithMaxLength(n int) SMSOption {
	return func(a *SMSAdapter) {
		if n > 0 {
			a.maxLength = n
		}
	}
}

// WithRecipientLimiter caps sends per destination phone.
func WithRecipientLimiter(l RecipientRateLimiter) SMSOption {
	return func(a *SMSAdapter) { a.limiter = l }
}

// NewSMSAdapter creates an SMS channel adapter.
func NewSMSAdapter(gateway SMSGateway, opts ...SMSOption) *SMSAdapter {
	a := &SMSAdapter{
		gateway:     gateway,
		countryCode: DefaultCountryCode,
		maxLength:   DefaultSMSMaxLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *SMSAdapter) Channel() Channel { return ChannelSMS }

// Recipient requires a client phone, a payment link for
// payment_link_created and a completed Stripe transaction for
// payment_link_paid.
func (a *SMSAdapter) Recipient(trigger Trigger, b *booking.Booking) (string, error) {
	if strings.TrimSpace(b.ClientPhone) == "" {
		return "", common.NewValidationError("booking %s has no client phone", b.ID)
	}

	switch trigger {
	case TriggerPaymentLinkCreated:
		if strings.TrimSpace(b.PaymentLink) == "" {
			return "", common.NewValidationError("booking %s has no payment link", b.ID)
		}
	case TriggerPaymentLinkPaid:
		if !b.HasCompletedStripePayment() {
			return "", common.NewValidationError("booking %s has no completed stripe transaction", b.ID)
		}
	}

	return NormalizePhone(b.ClientPhone, a.countryCode)
}

// Validate enforces the SMS length limit in characters.
func (a *SMSAdapter) Validate(msg *Message) error {
	if n := utf8.RuneCountInString(msg.Body); n > a.maxLength {
		return common.NewValidationError("sms too long: %d characters (max %d)", n, a.maxLength)
	}
	if strings.TrimSpace(msg.Body) == "" {
		return common.NewValidationError("sms body is empty")
	}
	return nil
}

func (a *SMSAdapter) Send(ctx context.Context, msg *Message) (string, error) {
	if a.limiter != nil {
		allowed, err := a.limiter.Allow(ctx, msg.To)
		if err != nil {
			slog.Error("recipient rate limit check failed, proceeding without limit", "recipient", msg.To, "error", err)
		} else if !allowed {
			return "", common.NewValidationError("recipient rate limited: %s", msg.To)
		}
	}

	resp, err := a.gateway.SendSMS(ctx, &SMSRequest{
		UserID:     msg.OwnerID,
		ToPhone:    msg.To,
		Message:    msg.Body,
		WorkflowID: msg.WorkflowID,
		BookingID:  msg.BookingID,
	})
	if err != nil {
		return "", err
	}
	return resp.MessageSID, nil
}
