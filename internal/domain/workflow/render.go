package workflow

import (
	"strconv"
	"strings"
	"time"

	"bookingfast/internal/domain/booking"
)

// Render substitutes every recognized {{placeholder}} in content with a
// value taken from the booking. Unrecognized placeholders are left as-is.
// No escaping is performed.
func Render(content string, b *booking.Booking) string {
	if content == "" || !strings.Contains(content, "{{") {
		return content
	}
	return placeholders(b).Replace(content)
}

func placeholders(b *booking.Booking) *strings.Replacer {
	var serviceName, serviceDescription string
	var servicePrice float64
	if b.Service != nil {
		serviceName = b.Service.Name
		serviceDescription = b.Service.Description
		servicePrice = b.Service.PriceTTC
	}

	paymentLink := b.PaymentLink
	if paymentLink == "" {
		paymentLink = "#"
	}

	quantity := b.Quantity
	if quantity < 1 {
		quantity = 1
	}

	return strings.NewReplacer(
		"{{client_firstname}}", b.ClientFirstname,
		"{{client_lastname}}", b.ClientName,
		"{{client_name}}", b.ClientFullName(),
		"{{client_email}}", b.ClientEmail,
		"{{client_phone}}", b.ClientPhone,
		"{{service_name}}", serviceName,
		"{{service_description}}", serviceDescription,
		"{{service_price}}", money(servicePrice),
		"{{booking_id}}", b.ID,
		"{{booking_date}}", shortDate(b.Date),
		"{{booking_time}}", shortTime(b.Time),
		"{{booking_duration}}", strconv.Itoa(b.Duration),
		"{{booking_quantity}}", strconv.Itoa(quantity),
		"{{booking_status}}", string(b.BookingStatus),
		"{{payment_status}}", string(b.PaymentStatus),
		"{{total_amount}}", money(b.TotalAmount),
		"{{payment_amount}}", money(b.PaymentAmount),
		"{{remaining_amount}}", money(b.RemainingAmount()),
		"{{payment_link}}", paymentLink,
	)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// shortDate formats YYYY-MM-DD as dd/MM. Unparseable input is returned unchanged.
func shortDate(date string) string {
	if date == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("02/01")
}

// shortTime keeps HH:MM.
func shortTime(t string) string {
	if len(t) >= 5 {
		return t[:5]
	}
	return t
}
