package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	svc        *Service
	repo       *fakeRepo
	providerID uuid.UUID
	patientID  uuid.UUID
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	svc, repo, providerID := slotFixture(t)
	patientID := uuid.New()
	repo.addPatient(patientID)
	return &bookingFixture{svc: svc, repo: repo, providerID: providerID, patientID: patientID}
}

func (f *bookingFixture) request(start time.Time) BookingRequest {
	return BookingRequest{
		ProviderID:       f.providerID,
		PatientID:        f.patientID,
		StartAt:          start,
		DurationMinutes:  30,
		ConsultationType: ConsultationVideo,
	}
}

func TestBookSuccess(t *testing.T) {
	f := newBookingFixture(t)
	start := localInstant(t, testMonday, "10:00")

	appt, err := f.svc.Book(context.Background(), f.request(start))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.True(t, appt.StartAt.Equal(start))
	assert.Equal(t, 30, appt.DurationMinutes)

	// Immediately visible to conflict detection, no consistency window.
	conflict, err := f.svc.Overlaps(context.Background(), f.providerID, start, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, conflict)

	assert.Contains(t, f.repo.eventTypes(), EventAppointmentCreated)
}

func TestBookAdjacentAppointmentsDoNotConflict(t *testing.T) {
	f := newBookingFixture(t)
	ten := localInstant(t, testMonday, "10:00")

	_, err := f.svc.Book(context.Background(), f.request(ten))
	require.NoError(t, err)

	// Half-open semantics: 10:30 starts exactly when 10:00-10:30 ends.
	_, err = f.svc.Book(context.Background(), f.request(ten.Add(30*time.Minute)))
	assert.NoError(t, err)
}

func TestBookConflictFails(t *testing.T) {
	f := newBookingFixture(t)
	ten := localInstant(t, testMonday, "10:00")

	_, err := f.svc.Book(context.Background(), f.request(ten))
	require.NoError(t, err)

	// Same slot again.
	_, err = f.svc.Book(context.Background(), f.request(ten))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Partial overlap.
	_, err = f.svc.Book(context.Background(), f.request(ten.Add(15*time.Minute)))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookOutsideAvailability(t *testing.T) {
	f := newBookingFixture(t)

	// 08:00 is before the 09:00 template start.
	_, err := f.svc.Book(context.Background(), f.request(localInstant(t, testMonday, "08:00")))
	assert.ErrorIs(t, err, ErrOutsideAvailability)

	// Tuesday has no template at all.
	_, err = f.svc.Book(context.Background(), f.request(localInstant(t, testMonday.AddDays(1), "10:00")))
	assert.ErrorIs(t, err, ErrOutsideAvailability)

	// 16:45 + 30min spills past the 17:00 template end.
	_, err = f.svc.Book(context.Background(), f.request(localInstant(t, testMonday, "16:45")))
	assert.ErrorIs(t, err, ErrOutsideAvailability)
}

func TestBookBlockedTimeIsUnavailable(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.BlockSlot(context.Background(), BlockedSlot{
		ProviderID:  f.providerID,
		Date:        testMonday,
		StartMinute: 10 * 60,
		EndMinute:   11 * 60,
		Reason:      "blocked after listing",
	})
	require.NoError(t, err)

	_, err = f.svc.Book(context.Background(), f.request(localInstant(t, testMonday, "10:00")))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookMinimumLeadTime(t *testing.T) {
	f := newBookingFixture(t)

	// Booking 30 minutes ahead with a 1-hour lead time policy.
	now := localInstant(t, testMonday, "09:00")
	f.svc.now = func() time.Time { return now }

	_, err := f.svc.Book(context.Background(), f.request(now.Add(30*time.Minute)))
	assert.ErrorIs(t, err, ErrPastSlot)

	// Strictly in the past as well.
	_, err = f.svc.Book(context.Background(), f.request(now.Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrPastSlot)
}

func TestBookValidation(t *testing.T) {
	f := newBookingFixture(t)
	start := localInstant(t, testMonday, "10:00")

	tests := []struct {
		name   string
		mutate func(*BookingRequest)
	}{
		{"missing provider", func(r *BookingRequest) { r.ProviderID = uuid.Nil }},
		{"missing patient", func(r *BookingRequest) { r.PatientID = uuid.Nil }},
		{"zero start", func(r *BookingRequest) { r.StartAt = time.Time{} }},
		{"non-positive duration", func(r *BookingRequest) { r.DurationMinutes = 0 }},
		{"missing type", func(r *BookingRequest) { r.ConsultationType = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(start)
			tt.mutate(&req)
			_, err := f.svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBookUnknownParties(t *testing.T) {
	f := newBookingFixture(t)
	start := localInstant(t, testMonday, "10:00")

	req := f.request(start)
	req.PatientID = uuid.New()
	_, err := f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	req = f.request(start)
	req.ProviderID = uuid.New()
	_, err = f.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestConcurrentBookingExactlyOneWinner(t *testing.T) {
	f := newBookingFixture(t)
	start := localInstant(t, testMonday, "10:00")

	const attempts = 16

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.request(start))
			errs[i] = err
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrConcurrencyConflict):
			lost++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent booking must win")
	assert.Equal(t, attempts-1, lost)

	// Store-level invariant: no two committed appointments overlap.
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	var committed []Appointment
	for _, a := range f.repo.appts {
		if a.Status.Committed() {
			committed = append(committed, a)
		}
	}
	require.Len(t, committed, 1)
}

func TestConcurrentBookingsDifferentSlotsAllSucceed(t *testing.T) {
	f := newBookingFixture(t)

	starts := []time.Time{
		localInstant(t, testMonday, "09:00"),
		localInstant(t, testMonday, "10:00"),
		localInstant(t, testMonday, "11:00"),
		localInstant(t, testMonday, "12:00"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(starts))
	for i, start := range starts {
		wg.Add(1)
		go func(i int, start time.Time) {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.request(start))
			errs[i] = err
		}(i, start)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "booking %d should succeed", i)
	}
}

func TestOverlapsChecksCommittedOnly(t *testing.T) {
	f := newBookingFixture(t)
	ten := localInstant(t, testMonday, "10:00")

	appt, err := f.svc.Book(context.Background(), f.request(ten))
	require.NoError(t, err)

	_, err = f.repo.UpdateAppointmentStatus(context.Background(), appt.ID,
		[]AppointmentStatus{StatusScheduled}, StatusCancelled)
	require.NoError(t, err)

	conflict, err := f.svc.Overlaps(context.Background(), f.providerID, ten, ten.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, conflict, "cancelled appointments hold no time")
}
