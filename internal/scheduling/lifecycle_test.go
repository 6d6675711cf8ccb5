package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/scheduling-engine/internal/authz"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]AppointmentStatus{
		{StatusScheduled, StatusConfirmed},
		{StatusScheduled, StatusCancelled},
		{StatusScheduled, StatusNoShow},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusNoShow},
	}
	for _, pair := range allowed {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s should be allowed", pair[0], pair[1])
	}

	denied := [][2]AppointmentStatus{
		{StatusScheduled, StatusCompleted}, // must confirm first
		{StatusConfirmed, StatusScheduled},
		{StatusCompleted, StatusConfirmed},
		{StatusCancelled, StatusScheduled},
		{StatusCancelled, StatusConfirmed},
		{StatusNoShow, StatusCompleted},
		{StatusCompleted, StatusCancelled},
	}
	for _, pair := range denied {
		assert.False(t, CanTransition(pair[0], pair[1]), "%s -> %s should be denied", pair[0], pair[1])
	}
}

func (f *bookingFixture) book(t *testing.T, hhmm string) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), f.request(localInstant(t, testMonday, hhmm)))
	require.NoError(t, err)
	return appt
}

func (f *bookingFixture) patient() authz.Actor {
	return authz.Actor{UserID: f.patientID, Role: authz.RolePatient}
}

func (f *bookingFixture) provider() authz.Actor {
	return authz.Actor{UserID: f.providerID, Role: authz.RoleProvider}
}

func TestConfirmThenComplete(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	confirmed, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed, f.patient())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	done, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusCompleted, f.provider())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	types := f.repo.eventTypes()
	assert.Contains(t, types, EventAppointmentConfirmed)
	assert.Contains(t, types, EventAppointmentCompleted)
}

func TestCompleteRequiresConfirmedFirst(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusCompleted, f.provider())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteDeniedToPatient(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed, f.patient())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), appt.ID, StatusCompleted, f.patient())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCancelWithinWindow(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	// Two hours before the appointment, with a 24-hour window.
	f.svc.now = func() time.Time { return appt.StartAt.Add(-2 * time.Hour) }

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.patient())
	assert.ErrorIs(t, err, ErrCancellationWindowExpired)

	// The provider may cancel the same appointment inside the window.
	cancelled, err := f.svc.Cancel(context.Background(), appt.ID, f.provider())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Contains(t, f.repo.eventTypes(), EventAppointmentCancelled)
}

func TestCancelOutsideWindowByPatient(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	f.svc.now = func() time.Time { return appt.StartAt.Add(-48 * time.Hour) }

	cancelled, err := f.svc.Cancel(context.Background(), appt.ID, f.patient())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelAuthorization(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	stranger := authz.Actor{UserID: uuid.New(), Role: authz.RolePatient}
	_, err := f.svc.Cancel(context.Background(), appt.ID, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	otherProvider := authz.Actor{UserID: uuid.New(), Role: authz.RoleProvider}
	_, err = f.svc.Cancel(context.Background(), appt.ID, otherProvider)
	assert.ErrorIs(t, err, ErrUnauthorized)

	admin := authz.Actor{UserID: uuid.New(), Role: authz.RoleAdmin}
	_, err = f.svc.Cancel(context.Background(), appt.ID, admin)
	assert.NoError(t, err)
}

func TestCancelTerminalAppointmentFails(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.provider())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), appt.ID, f.provider())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Cancellation preserved the record rather than deleting it.
	got, err := f.svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestNoShowOnlyAfterAppointmentTime(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	// Before the appointment: not a no-show yet.
	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusNoShow, f.provider())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.svc.now = func() time.Time { return appt.StartAt.Add(time.Hour) }

	// Patients never mark no-shows.
	_, err = f.svc.UpdateStatus(context.Background(), appt.ID, StatusNoShow, f.patient())
	assert.ErrorIs(t, err, ErrUnauthorized)

	marked, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusNoShow, f.provider())
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)
}

func TestNoShowReachableFromConfirmed(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusConfirmed, f.patient())
	require.NoError(t, err)

	f.svc.now = func() time.Time { return appt.StartAt.Add(time.Hour) }
	marked, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusNoShow, f.provider())
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)
}

func TestRescheduleSuccess(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	newStart := localInstant(t, testMonday, "14:00")
	moved, err := f.svc.Reschedule(context.Background(), appt.ID, newStart, f.patient())
	require.NoError(t, err)
	assert.True(t, moved.StartAt.Equal(newStart))
	assert.Equal(t, 1, moved.RescheduleCount)
	assert.Equal(t, appt.Status, moved.Status)

	// The old slot is released.
	old := localInstant(t, testMonday, "10:00")
	conflict, err := f.svc.Overlaps(context.Background(), f.providerID, old, old.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, conflict)

	assert.Contains(t, f.repo.eventTypes(), EventAppointmentRescheduled)
}

func TestRescheduleConflictLeavesOriginalUntouched(t *testing.T) {
	f := newBookingFixture(t)
	first := f.book(t, "10:00")
	second := f.book(t, "14:00")

	// Move the first onto the second's slot.
	_, err := f.svc.Reschedule(context.Background(), first.ID, second.StartAt, f.patient())
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	got, err := f.svc.GetAppointment(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, got.StartAt.Equal(first.StartAt), "original time must be unchanged")
	assert.Equal(t, first.Status, got.Status)
	assert.Equal(t, 0, got.RescheduleCount)
}

func TestRescheduleOutsideAvailability(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	_, err := f.svc.Reschedule(context.Background(), appt.ID, localInstant(t, testMonday, "18:00"), f.patient())
	assert.ErrorIs(t, err, ErrOutsideAvailability)
}

func TestRescheduleLimit(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "09:00")

	starts := []string{"10:00", "11:00", "12:00"}
	for _, hhmm := range starts {
		_, err := f.svc.Reschedule(context.Background(), appt.ID, localInstant(t, testMonday, hhmm), f.patient())
		require.NoError(t, err)
	}

	// The default limit of 3 is exhausted.
	_, err := f.svc.Reschedule(context.Background(), appt.ID, localInstant(t, testMonday, "13:00"), f.patient())
	assert.ErrorIs(t, err, ErrRescheduleLimitExceeded)
}

func TestRescheduleCancelledFails(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.provider())
	require.NoError(t, err)

	_, err = f.svc.Reschedule(context.Background(), appt.ID, localInstant(t, testMonday, "14:00"), f.patient())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusUnknownAppointment(t *testing.T) {
	f := newBookingFixture(t)
	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), StatusConfirmed, f.patient())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestUpdateStatusRejectsNonTargets(t *testing.T) {
	f := newBookingFixture(t)
	appt := f.book(t, "10:00")

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, StatusScheduled, f.provider())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
