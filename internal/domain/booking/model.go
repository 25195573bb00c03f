package booking

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks how much of a booking has been paid.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPartial   PaymentStatus = "partial"
	PaymentCompleted PaymentStatus = "completed"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Service is the bookable service referenced by a booking.
type Service struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	PriceTTC    float64 `json:"price_ttc"`
	UnitName    string  `json:"unit_name,omitempty"`
}

// Transaction is a single payment recorded against a booking.
type Transaction struct {
	ID        string    `json:"id,omitempty"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Booking is a read-only snapshot of a scheduled appointment.
// Date is YYYY-MM-DD and Time is HH:MM:SS, both in the business time zone.
type Booking struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	ClientName      string        `json:"client_name"`
	ClientFirstname string        `json:"client_firstname"`
	ClientEmail     string        `json:"client_email"`
	ClientPhone     string        `json:"client_phone"`
	Date            string        `json:"date"`
	Time            string        `json:"time"`
	Duration        int           `json:"duration_minutes"`
	ServiceID       string        `json:"service_id"`
	Service         *Service      `json:"service,omitempty"`
	Quantity        int           `json:"quantity"`
	TotalAmount     float64       `json:"total_amount"`
	PaymentAmount   float64       `json:"payment_amount"`
	BookingStatus   Status        `json:"booking_status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentLink     string        `json:"payment_link,omitempty"`
	Transactions    []Transaction `json:"transactions,omitempty"`
}

// Start returns the scheduled start of the booking in loc.
func (b *Booking) Start(loc *time.Location) (time.Time, error) {
	t := b.Time
	if len(t) == len("15:04") {
		t += ":00"
	}
	return time.ParseInLocation(dateLayout+" "+timeLayout, b.Date+" "+t, loc)
}

// End returns the start plus the booking duration.
func (b *Booking) End(loc *time.Location) (time.Time, error) {
	start, err := b.Start(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(b.Duration) * time.Minute), nil
}

// HasCompletedStripePayment reports whether a completed Stripe transaction exists.
func (b *Booking) HasCompletedStripePayment() bool {
	for _, tx := range b.Transactions {
		if tx.Method == "stripe" && tx.Status == "completed" {
			return true
		}
	}
	return false
}

// ClientFullName joins first name and name, skipping empty parts.
func (b *Booking) ClientFullName() string {
	return strings.TrimSpace(strings.TrimSpace(b.ClientFirstname) + " " + strings.TrimSpace(b.ClientName))
}

// RemainingAmount is what is still owed; never negative.
func (b *Booking) RemainingAmount() float64 {
	if r := b.TotalAmount - b.PaymentAmount; r > 0 {
		return r
	}
	return 0
}
