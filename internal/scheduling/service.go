package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telecare/scheduling-engine/internal/events"
	redisclient "github.com/telecare/scheduling-engine/internal/redis"
	"github.com/telecare/scheduling-engine/internal/timeutil"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentOverdue     = "APPOINTMENT_OVERDUE"
)

// Policy holds the tunable business rules for the engine.
type Policy struct {
	MinLeadTime        time.Duration // booking must start at least this far in the future
	CancellationWindow time.Duration // patient cancels must happen this long before start
	RescheduleLimit    int           // per-appointment cap on reschedules
	DefaultSlotMinutes int           // slot duration when the caller does not pick one
}

// DefaultPolicy mirrors the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		MinLeadTime:        time.Hour,
		CancellationWindow: 24 * time.Hour,
		RescheduleLimit:    3,
		DefaultSlotMinutes: 30,
	}
}

// Service is the scheduling engine: slot generation, conflict detection,
// atomic booking, and the appointment lifecycle.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	events events.Publisher
	policy Policy
	log    *zap.SugaredLogger

	// now is swapped in tests; everything policy-sensitive reads the
	// clock through it.
	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, pub events.Publisher, policy Policy, log *zap.SugaredLogger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		events: pub,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// Overlaps reports whether the half-open candidate interval intersects any
// committed appointment or blocked slot of the provider. An appointment
// ending exactly when the candidate starts does not conflict.
func (s *Service) Overlaps(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	return s.overlapsExcluding(ctx, providerID, start, end, uuid.Nil)
}

func (s *Service) overlapsExcluding(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	conflict, err := s.repo.HasCommittedOverlap(ctx, providerID, start, end, exclude)
	if err != nil {
		return false, fmt.Errorf("check appointment overlap: %w", err)
	}
	if conflict {
		return true, nil
	}

	// Blocks created after slots were listed must still reject the
	// booking, so blocked time is re-checked here rather than trusted to
	// slot generation.
	blocked, err := s.blockedDuring(ctx, providerID, start, end)
	if err != nil {
		return false, err
	}
	return blocked, nil
}

func (s *Service) blockedDuring(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return false, err
	}
	loc, err := time.LoadLocation(provider.Timezone)
	if err != nil {
		return false, fmt.Errorf("provider %s has invalid timezone %q: %w", providerID, provider.Timezone, err)
	}

	// A candidate can straddle a local midnight, so both touched dates
	// are consulted.
	for _, date := range touchedDates(start, end, loc) {
		blocks, err := s.repo.ListBlockedSlots(ctx, providerID, date)
		if err != nil {
			return false, fmt.Errorf("load blocked slots: %w", err)
		}
		for _, b := range blocks {
			bs, err := timeutil.ToAbsolute(b.Date, b.StartMinute, loc)
			if err != nil {
				continue // block start erased by a DST gap, nothing bookable there anyway
			}
			be := bs.Add(time.Duration(b.EndMinute-b.StartMinute) * time.Minute)
			if (timeutil.Interval{Start: bs, End: be}).Overlaps(timeutil.Interval{Start: start, End: end}) {
				return true, nil
			}
		}
	}
	return false, nil
}

func touchedDates(start, end time.Time, loc *time.Location) []timeutil.Date {
	first := timeutil.DateOf(start, loc)
	last := timeutil.DateOf(end.Add(-time.Nanosecond), loc)
	if first == last {
		return []timeutil.Date{first}
	}
	return []timeutil.Date{first, last}
}

// Book atomically reserves a candidate interval as a new SCHEDULED
// appointment. The overlap check and insert form a single critical
// section per provider: no two concurrent calls can both observe "no
// conflict" and both commit overlapping intervals. The committed
// appointment is visible to Overlaps immediately.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.validateBooking(req); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, err
	}

	start := req.StartAt
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	if start.Before(s.now().Add(s.policy.MinLeadTime)) {
		return nil, fmt.Errorf("%w: bookings need %s lead time", ErrPastSlot, s.policy.MinLeadTime)
	}

	// Blocked time is a conflict, not a template gap: report it as
	// unavailable rather than outside availability.
	blocked, err := s.blockedDuring(ctx, req.ProviderID, start, end)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrSlotUnavailable
	}

	within, err := s.withinAvailability(ctx, req.ProviderID, start, end)
	if err != nil {
		return nil, err
	}
	if !within {
		return nil, ErrOutsideAvailability
	}

	var created *Appointment

	err = s.locker.WithProviderLock(ctx, req.ProviderID, func(lockCtx context.Context) error {
		// Re-check inside the critical section: the listing the caller
		// picked from may be stale.
		conflict, err := s.Overlaps(lockCtx, req.ProviderID, start, end)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotUnavailable
		}

		appt, err := s.repo.CreateAppointmentIfFree(lockCtx, Appointment{
			ID:               uuid.New(),
			ProviderID:       req.ProviderID,
			PatientID:        req.PatientID,
			StartAt:          start,
			DurationMinutes:  req.DurationMinutes,
			ConsultationType: req.ConsultationType,
			Status:           StatusScheduled,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	s.log.Infow("appointment booked",
		"appointment_id", created.ID, "provider_id", req.ProviderID,
		"patient_id", req.PatientID, "start_at", start, "duration_min", req.DurationMinutes)

	// Event emission happens after the commit and outside the provider
	// lock; downstream collaborators can never hold up a booking.
	s.emit(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"provider_id":  req.ProviderID.String(),
		"patient_id":   req.PatientID.String(),
		"start_at":     start,
		"duration_min": req.DurationMinutes,
		"type":         string(req.ConsultationType),
	})

	return created, nil
}

func (s *Service) validateBooking(req BookingRequest) error {
	switch {
	case req.ProviderID == uuid.Nil:
		return fmt.Errorf("%w: provider id required", ErrValidation)
	case req.PatientID == uuid.Nil:
		return fmt.Errorf("%w: patient id required", ErrValidation)
	case req.StartAt.IsZero():
		return fmt.Errorf("%w: start time required", ErrValidation)
	case req.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	case req.ConsultationType == "":
		return fmt.Errorf("%w: consultation type required", ErrValidation)
	}
	return nil
}

// withinAvailability checks that [start, end) fits entirely inside one of
// the provider's effective open intervals for the local date of start.
func (s *Service) withinAvailability(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return false, err
	}
	loc, err := time.LoadLocation(provider.Timezone)
	if err != nil {
		return false, fmt.Errorf("provider %s has invalid timezone %q: %w", providerID, provider.Timezone, err)
	}

	date := timeutil.DateOf(start, loc)
	open, err := s.EffectiveAvailability(ctx, providerID, date)
	if err != nil {
		return false, err
	}

	candidate := timeutil.Interval{Start: start, End: end}
	for _, iv := range open {
		ivStart, err := timeutil.ToAbsolute(date, iv.Start, loc)
		if err != nil {
			continue
		}
		ivEnd := ivStart.Add(time.Duration(iv.End-iv.Start) * time.Minute)
		if (timeutil.Interval{Start: ivStart, End: ivEnd}).Contains(candidate) {
			return true, nil
		}
	}
	return false, nil
}

// emit writes the audit event log row and publishes the logical event.
// Neither failure mode is allowed to fail the business operation.
func (s *Service) emit(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Errorw("marshal event payload", "type", eventType, "err", err)
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Errorw("insert event log", "type", eventType, "appointment_id", appointmentID, "err", err)
	}

	s.events.Publish(ctx, eventType, payload)
}

// GetAppointment loads one appointment.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return appt, nil
}
