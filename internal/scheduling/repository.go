package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

// Repository contains all store interactions needed by the engine. The
// conditional write methods (CreateAppointmentIfFree, RescheduleIfFree)
// must enforce the no-overlap invariant inside a single statement or
// transaction so the store stays correct even without the provider lock.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	// Weekly template. Get returns (nil, nil) when the provider has no
	// record for that weekday; Upsert replaces the existing record for
	// the (provider, weekday) pair, latest write wins.
	GetWeeklyAvailability(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) (*WeeklyAvailability, error)
	UpsertWeeklyAvailability(ctx context.Context, av WeeklyAvailability) (*WeeklyAvailability, error)

	CreateBlockedSlot(ctx context.Context, b BlockedSlot) (*BlockedSlot, error)
	ListBlockedSlots(ctx context.Context, providerID uuid.UUID, date timeutil.Date) ([]BlockedSlot, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Conflict detection over committed (scheduled/confirmed) appointments,
	// half-open interval semantics. exclude skips one appointment id so a
	// reschedule does not conflict with itself; pass uuid.Nil to skip none.
	HasCommittedOverlap(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error)
	ListCommittedAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// CreateAppointmentIfFree inserts the appointment only if no committed
	// appointment overlaps its interval; otherwise ErrSlotUnavailable.
	CreateAppointmentIfFree(ctx context.Context, appt Appointment) (*Appointment, error)

	// RescheduleIfFree moves a committed appointment to newStart and bumps
	// its reschedule count, only if the new interval is free (ignoring the
	// appointment itself); otherwise ErrSlotUnavailable and the row is
	// left untouched.
	RescheduleIfFree(ctx context.Context, id uuid.UUID, newStart time.Time) (*Appointment, error)

	// UpdateAppointmentStatus transitions id from any of the given
	// statuses to the target, returning ErrAppointmentNotFound when no
	// row matches.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)

	// FindOverdueCommitted returns committed appointments whose interval
	// has fully passed and that have not yet been flagged overdue, for
	// the reminder worker.
	FindOverdueCommitted(ctx context.Context, now time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
