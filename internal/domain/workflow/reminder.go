package workflow

import (
	"context"
	"log/slog"
	"time"

	"bookingfast/internal/domain/booking"
)

// ReminderConfig holds configuration for the reminder scanner.
type ReminderConfig struct {
	// Interval is how often the scanner runs. Each run covers the slice of
	// time elapsed since the previous one.
	Interval time.Duration

	// Location is the time zone booking dates and times are expressed in.
	Location *time.Location

	// Channels receive one task per selected booking.
	Channels []Channel
}

// ReminderScanner raises the time-based triggers that no booking mutation
// fires: reminder_24h, reminder_1h and follow_up.
//
// Every run selects bookings whose reference instant falls in the half-open
// window (now-Interval, now] shifted by the trigger offset, so a booking is
// picked by one run only as long as runs are Interval apart.
type ReminderScanner struct {
	bookings BookingStore
	enqueuer Enqueuer
	config   ReminderConfig
	now      func() time.Time
}

// NewReminderScanner creates a new reminder scanner.
func NewReminderScanner(bookings BookingStore, enqueuer Enqueuer, cfg ReminderConfig) *ReminderScanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []Channel{ChannelEmail, ChannelSMS}
	}
	return &ReminderScanner{
		bookings: bookings,
		enqueuer: enqueuer,
		config:   cfg,
		now:      time.Now,
	}
}

// Run scans once immediately, then on every interval. It blocks until the
// context is cancelled. Should be called in a goroutine.
func (s *ReminderScanner) Run(ctx context.Context) {
	slog.Info("reminder scanner started",
		"interval", s.config.Interval,
		"location", s.config.Location.String(),
	)

	s.Scan(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reminder scanner stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

type reminderRule struct {
	trigger Trigger
	offset  time.Duration
	useEnd  bool
}

var reminderRules = []reminderRule{
	{trigger: TriggerReminder24h, offset: 24 * time.Hour},
	{trigger: TriggerReminder1h, offset: time.Hour},
	{trigger: TriggerFollowUp, offset: 0, useEnd: true},
}

// Scan performs one scanner cycle and returns the number of tasks enqueued.
func (s *ReminderScanner) Scan(ctx context.Context) int {
	now := s.now().In(s.config.Location)

	// Bookings ending in the last interval may have started the day before;
	// reminders look at most 24h plus an interval ahead.
	from := now.Add(-24 * time.Hour).Format("2006-01-02")
	to := now.Add(24*time.Hour + s.config.Interval).Format("2006-01-02")

	candidates, err := s.bookings.ListBetween(ctx, from, to)
	if err != nil {
		slog.Error("reminder scanner: failed to list bookings", "error", err)
		return 0
	}

	enqueued := 0
	for _, b := range candidates {
		if b == nil || b.BookingStatus == booking.StatusCancelled {
			continue
		}
		for _, rule := range reminderRules {
			if !s.due(b, rule, now) {
				continue
			}
			enqueued += s.enqueue(ctx, b, rule.trigger)
		}
	}

	if enqueued > 0 {
		slog.Info("reminder scanner: cycle complete", "enqueued", enqueued, "candidates", len(candidates))
	}
	return enqueued
}

func (s *ReminderScanner) due(b *booking.Booking, rule reminderRule, now time.Time) bool {
	var ref time.Time
	var err error
	if rule.useEnd {
		ref, err = b.End(s.config.Location)
	} else {
		ref, err = b.Start(s.config.Location)
	}
	if err != nil {
		slog.Warn("reminder scanner: unparseable booking schedule",
			"booking_id", b.ID,
			"date", b.Date,
			"time", b.Time,
		)
		return false
	}

	// ref - offset in (now - interval, now]
	at := ref.Add(-rule.offset)
	return at.After(now.Add(-s.config.Interval)) && !at.After(now)
}

func (s *ReminderScanner) enqueue(ctx context.Context, b *booking.Booking, trigger Trigger) int {
	n := 0
	for _, c := range s.config.Channels {
		_, err := s.enqueuer.EnqueueDispatch(ctx, &DispatchPayload{
			Channel: c,
			Trigger: trigger,
			OwnerID: b.UserID,
			Booking: b,
		})
		if err != nil {
			slog.Error("reminder scanner: failed to enqueue",
				"booking_id", b.ID,
				"trigger", trigger,
				"channel", c,
				"error", err,
			)
			continue
		}
		n++
	}
	return n
}
