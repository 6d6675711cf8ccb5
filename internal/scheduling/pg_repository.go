package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

// DB is the slice of pgxpool.Pool the repository needs. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// overlapPredicate is the half-open conflict condition shared by every
// committed-appointment check: [start_at, start_at + duration) intersects
// [$from, $to). Touching endpoints never conflict.
const overlapPredicate = `
	  provider_id = $1
	  AND status IN ('scheduled', 'confirmed')
	  AND start_at < $3
	  AND start_at + make_interval(mins => duration_minutes) > $2
`

// Scan helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.Timezone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanWeekly(row pgx.Row) (*WeeklyAvailability, error) {
	var w WeeklyAvailability
	var weekday, startMin, endMin int

	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&weekday,
		&startMin,
		&endMin,
		&w.IsAvailable,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Weekday = time.Weekday(weekday)
	w.StartMinute = timeutil.TimeOfDay(startMin)
	w.EndMinute = timeutil.TimeOfDay(endMin)
	return &w, nil
}

func scanBlocked(row pgx.Row) (*BlockedSlot, error) {
	var b BlockedSlot
	var date time.Time
	var startMin, endMin int

	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&date,
		&startMin,
		&endMin,
		&b.Reason,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Date = timeutil.Date{Year: date.Year(), Month: date.Month(), Day: date.Day()}
	b.StartMinute = timeutil.TimeOfDay(startMin)
	b.EndMinute = timeutil.TimeOfDay(endMin)
	return &b, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var ctype string
	var status string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.StartAt,
		&a.DurationMinutes,
		&ctype,
		&status,
		&a.RescheduleCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ConsultationType = ConsultationType(ctype)
	a.Status = AppointmentStatus(status)
	return &a, nil
}

const appointmentColumns = `id, provider_id, patient_id, start_at, duration_minutes, consultation_type, status, reschedule_count, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, timezone, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetWeeklyAvailability(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) (*WeeklyAvailability, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, provider_id, weekday, start_minute, end_minute, is_available, created_at, updated_at
		FROM weekly_availability
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int(weekday))

	w, err := scanWeekly(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no template for that weekday
		}
		return nil, err
	}
	return w, nil
}

func (r *PgRepository) UpsertWeeklyAvailability(ctx context.Context, av WeeklyAvailability) (*WeeklyAvailability, error) {
	// Latest write replaces the authoritative record for the weekday.
	row := r.db.QueryRow(ctx, `
		INSERT INTO weekly_availability (id, provider_id, weekday, start_minute, end_minute, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (provider_id, weekday) DO UPDATE
		SET start_minute = EXCLUDED.start_minute,
		    end_minute = EXCLUDED.end_minute,
		    is_available = EXCLUDED.is_available,
		    updated_at = now()
		RETURNING id, provider_id, weekday, start_minute, end_minute, is_available, created_at, updated_at
	`, av.ID, av.ProviderID, int(av.Weekday), int(av.StartMinute), int(av.EndMinute), av.IsAvailable)

	return scanWeekly(row)
}

func (r *PgRepository) CreateBlockedSlot(ctx context.Context, b BlockedSlot) (*BlockedSlot, error) {
	date := time.Date(b.Date.Year, b.Date.Month, b.Date.Day, 0, 0, 0, 0, time.UTC)

	row := r.db.QueryRow(ctx, `
		INSERT INTO blocked_slots (id, provider_id, date, start_minute, end_minute, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, provider_id, date, start_minute, end_minute, reason, created_at
	`, b.ID, b.ProviderID, date, int(b.StartMinute), int(b.EndMinute), b.Reason)

	return scanBlocked(row)
}

func (r *PgRepository) ListBlockedSlots(ctx context.Context, providerID uuid.UUID, date timeutil.Date) ([]BlockedSlot, error) {
	day := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC)

	rows, err := r.db.Query(ctx, `
		SELECT id, provider_id, date, start_minute, end_minute, reason, created_at
		FROM blocked_slots
		WHERE provider_id = $1 AND date = $2
		ORDER BY start_minute
	`, providerID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedSlot
	for rows.Next() {
		b, err := scanBlocked(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasCommittedOverlap(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE `+overlapPredicate+`
			  AND id <> $4
		)
	`, providerID, start, end, exclude).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) ListCommittedAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+overlapPredicate+`
		ORDER BY start_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// CreateAppointmentIfFree is the store-level line of defense for the
// no-overlap invariant: the insert and the conflict check run as one
// statement, so even two sessions that both passed the service-level
// check cannot both commit.
func (r *PgRepository) CreateAppointmentIfFree(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, start_at, duration_minutes, consultation_type, status, reschedule_count, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, 'scheduled', 0, now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $2
			  AND status IN ('scheduled', 'confirmed')
			  AND start_at < $4::timestamptz + make_interval(mins => $5::int)
			  AND start_at + make_interval(mins => duration_minutes) > $4::timestamptz
		)
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.ProviderID, appt.PatientID, appt.StartAt, appt.DurationMinutes, string(appt.ConsultationType))

	created, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) RescheduleIfFree(ctx context.Context, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments a
		SET start_at = $2,
		    reschedule_count = reschedule_count + 1,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status IN ('scheduled', 'confirmed')
		  AND NOT EXISTS (
			SELECT 1 FROM appointments b
			WHERE b.provider_id = a.provider_id
			  AND b.id <> a.id
			  AND b.status IN ('scheduled', 'confirmed')
			  AND b.start_at < $2::timestamptz + make_interval(mins => a.duration_minutes)
			  AND b.start_at + make_interval(mins => b.duration_minutes) > $2::timestamptz
		  )
		RETURNING `+appointmentColumns+`
	`, id, newStart)

	moved, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}
	return moved, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, string(to), fromStrs)

	return scanAppointment(row)
}

func (r *PgRepository) FindOverdueCommitted(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND start_at + make_interval(mins => duration_minutes) < $1
		  AND NOT EXISTS (
			SELECT 1 FROM event_logs e
			WHERE e.appointment_id = appointments.id
			  AND e.event_type = 'APPOINTMENT_OVERDUE'
		  )
		ORDER BY start_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
