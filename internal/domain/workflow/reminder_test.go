package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookingfast/internal/domain/booking"
)

func reminderBooking(id string, start time.Time, duration int) *booking.Booking {
	return &booking.Booking{
		ID:            id,
		UserID:        "owner-" + id,
		Date:          start.Format("2006-01-02"),
		Time:          start.Format("15:04:05"),
		Duration:      duration,
		BookingStatus: booking.StatusConfirmed,
	}
}

func TestReminderScannerSelectsWindows(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, loc)

	store := &fakeBookingStore{bookings: []*booking.Booking{
		reminderBooking("in24h", now.Add(24*time.Hour-2*time.Minute), 30),
		reminderBooking("in1h", now.Add(time.Hour), 30),
		reminderBooking("ended", now.Add(-62*time.Minute), 60),
		reminderBooking("in2h", now.Add(2*time.Hour), 30),
		reminderBooking("in24h-too-early", now.Add(24*time.Hour-6*time.Minute), 30),
		reminderBooking("in24h-later", now.Add(24*time.Hour+time.Minute), 30),
	}}
	cancelled := reminderBooking("cancelled", now.Add(time.Hour), 30)
	cancelled.BookingStatus = booking.StatusCancelled
	store.bookings = append(store.bookings, cancelled, &booking.Booking{ID: "broken", Date: "x"})

	enq := &fakeEnqueuer{}
	s := NewReminderScanner(store, enq, ReminderConfig{
		Interval: 5 * time.Minute,
		Location: loc,
		Channels: []Channel{ChannelSMS},
	})
	s.now = func() time.Time { return now }

	n := s.Scan(context.Background())
	assert.Equal(t, 3, n)

	got := map[string]Trigger{}
	for _, task := range enq.tasks {
		got[task.Booking.ID] = task.Trigger
		assert.Equal(t, ChannelSMS, task.Channel)
		assert.Equal(t, "owner-"+task.Booking.ID, task.OwnerID)
	}
	assert.Equal(t, map[string]Trigger{
		"in24h": TriggerReminder24h,
		"in1h":  TriggerReminder1h,
		"ended": TriggerFollowUp,
	}, got)

	assert.Equal(t, "2024-06-14", store.from)
	assert.Equal(t, "2024-06-16", store.to)
}

func TestReminderScannerConsecutiveRunsDoNotOverlap(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeBookingStore{bookings: []*booking.Booking{
		reminderBooking("b", now.Add(time.Hour), 30),
	}}
	enq := &fakeEnqueuer{}
	s := NewReminderScanner(store, enq, ReminderConfig{Interval: 5 * time.Minute, Channels: []Channel{ChannelEmail}})

	s.now = func() time.Time { return now }
	assert.Equal(t, 1, s.Scan(context.Background()))

	s.now = func() time.Time { return now.Add(5 * time.Minute) }
	assert.Equal(t, 0, s.Scan(context.Background()))
}

func TestReminderScannerEnqueuesEveryChannel(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeBookingStore{bookings: []*booking.Booking{reminderBooking("b", now.Add(time.Hour), 30)}}
	enq := &fakeEnqueuer{}
	s := NewReminderScanner(store, enq, ReminderConfig{})
	s.now = func() time.Time { return now }

	assert.Equal(t, 2, s.Scan(context.Background()))
	require.Len(t, enq.tasks, 2)
	assert.Equal(t, ChannelEmail, enq.tasks[0].Channel)
	assert.Equal(t, ChannelSMS, enq.tasks[1].Channel)
}

func TestReminderScannerStoreError(t *testing.T) {
	s := NewReminderScanner(&fakeBookingStore{err: errors.New("down")}, &fakeEnqueuer{}, ReminderConfig{})
	assert.Zero(t, s.Scan(context.Background()))
}

func TestReminderScannerRunStopsOnCancel(t *testing.T) {
	s := NewReminderScanner(&fakeBookingStore{}, &fakeEnqueuer{}, ReminderConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
}

func TestReminderScannerRunScansOnStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeBookingStore{bookings: []*booking.Booking{reminderBooking("in1h", now.Add(time.Hour), 30)}}
	enq := &fakeEnqueuer{}
	s := NewReminderScanner(store, enq, ReminderConfig{Interval: time.Hour, Channels: []Channel{ChannelSMS}})
	s.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The interval is an hour, so only the startup scan can enqueue.
	assert.Eventually(t, func() bool { return enq.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
