package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/authz"
	redisclient "github.com/telecare/scheduling-engine/internal/redis"
)

// transitions is the full lifecycle table. COMPLETED, CANCELLED, and
// NO_SHOW are terminal. NO_SHOW is reachable from both SCHEDULED and
// CONFIRMED.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether from → to appears in the lifecycle table.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var statusEvents = map[AppointmentStatus]string{
	StatusConfirmed: EventAppointmentConfirmed,
	StatusCompleted: EventAppointmentCompleted,
	StatusCancelled: EventAppointmentCancelled,
	StatusNoShow:    EventAppointmentNoShow,
}

// UpdateStatus applies one lifecycle transition under role authorization.
// Cancellations additionally enforce the cancellation window for
// patient-initiated requests; NO_SHOW is only valid once the appointment
// time has passed.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, target AppointmentStatus, actor authz.Actor) (*Appointment, error) {
	if target == StatusCancelled {
		return s.Cancel(ctx, id, actor)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	op, ok := statusOperation(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a transition target", ErrInvalidTransition, target)
	}
	if !authz.Allowed(actor, op, ownershipOf(appt)) {
		return nil, ErrUnauthorized
	}
	if !CanTransition(appt.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, target)
	}
	if target == StatusNoShow && s.now().Before(appt.StartAt) {
		return nil, fmt.Errorf("%w: cannot mark no-show before the appointment time", ErrInvalidTransition)
	}

	updated, err := s.compareAndSwapStatus(ctx, appt, target)
	if err != nil {
		return nil, err
	}

	s.log.Infow("appointment status updated",
		"appointment_id", id, "from", appt.Status, "to", target,
		"actor_id", actor.UserID, "actor_role", actor.Role)
	s.emit(ctx, id, statusEvents[target], map[string]any{
		"from":       string(appt.Status),
		"to":         string(target),
		"actor_id":   actor.UserID.String(),
		"actor_role": string(actor.Role),
	})

	return updated, nil
}

func statusOperation(target AppointmentStatus) (authz.Operation, bool) {
	switch target {
	case StatusConfirmed:
		return authz.OpConfirm, true
	case StatusCompleted:
		return authz.OpComplete, true
	case StatusNoShow:
		return authz.OpMarkNoShow, true
	}
	return "", false
}

func ownershipOf(a *Appointment) authz.Ownership {
	return authz.Ownership{PatientID: a.PatientID, ProviderID: a.ProviderID}
}

// Cancel transitions a committed appointment to CANCELLED. Patients are
// bound by the cancellation window; providers and admins bypass it, and
// the privileged action is audited. Appointments are never deleted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor authz.Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.Allowed(actor, authz.OpCancel, ownershipOf(appt)) {
		return nil, ErrUnauthorized
	}
	if !appt.Status.Committed() {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
	}

	now := s.now()
	bypassed := false
	if authz.BypassesCancellationWindow(actor.Role) {
		bypassed = now.After(appt.StartAt.Add(-s.policy.CancellationWindow))
	} else if !now.Before(appt.StartAt.Add(-s.policy.CancellationWindow)) {
		return nil, fmt.Errorf("%w: %s required before %s", ErrCancellationWindowExpired,
			s.policy.CancellationWindow, appt.StartAt.Format(time.RFC3339))
	}

	updated, err := s.compareAndSwapStatus(ctx, appt, StatusCancelled)
	if err != nil {
		return nil, err
	}

	if bypassed {
		s.log.Warnw("privileged cancellation inside window",
			"appointment_id", id, "actor_id", actor.UserID, "actor_role", actor.Role,
			"start_at", appt.StartAt)
	}
	s.log.Infow("appointment cancelled",
		"appointment_id", id, "actor_id", actor.UserID, "actor_role", actor.Role)
	s.emit(ctx, id, EventAppointmentCancelled, map[string]any{
		"actor_id":        actor.UserID.String(),
		"actor_role":      string(actor.Role),
		"inside_window":   bypassed,
		"previous_status": string(appt.Status),
	})

	return updated, nil
}

// Reschedule moves a committed appointment to a new start, validated like
// a fresh booking. The swap is atomic: when the new interval fails
// validation or loses a race, the original appointment keeps its time and
// status untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, actor authz.Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.Allowed(actor, authz.OpReschedule, ownershipOf(appt)) {
		return nil, ErrUnauthorized
	}
	if !appt.Status.Committed() {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidTransition, appt.Status)
	}
	if appt.RescheduleCount >= s.policy.RescheduleLimit {
		return nil, fmt.Errorf("%w: limit is %d", ErrRescheduleLimitExceeded, s.policy.RescheduleLimit)
	}

	newEnd := newStart.Add(time.Duration(appt.DurationMinutes) * time.Minute)
	if newStart.Before(s.now().Add(s.policy.MinLeadTime)) {
		return nil, fmt.Errorf("%w: bookings need %s lead time", ErrPastSlot, s.policy.MinLeadTime)
	}

	blocked, err := s.blockedDuring(ctx, appt.ProviderID, newStart, newEnd)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrSlotUnavailable
	}

	within, err := s.withinAvailability(ctx, appt.ProviderID, newStart, newEnd)
	if err != nil {
		return nil, err
	}
	if !within {
		return nil, ErrOutsideAvailability
	}

	var moved *Appointment

	err = s.locker.WithProviderLock(ctx, appt.ProviderID, func(lockCtx context.Context) error {
		conflict, err := s.overlapsExcluding(lockCtx, appt.ProviderID, newStart, newEnd, appt.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotUnavailable
		}

		m, err := s.repo.RescheduleIfFree(lockCtx, appt.ID, newStart)
		if err != nil {
			return err
		}
		moved = m
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	s.log.Infow("appointment rescheduled",
		"appointment_id", id, "old_start", appt.StartAt, "new_start", newStart,
		"reschedule_count", moved.RescheduleCount,
		"actor_id", actor.UserID, "actor_role", actor.Role)
	s.emit(ctx, id, EventAppointmentRescheduled, map[string]any{
		"old_start":  appt.StartAt,
		"new_start":  newStart,
		"actor_id":   actor.UserID.String(),
		"actor_role": string(actor.Role),
	})

	return moved, nil
}

// compareAndSwapStatus transitions from the observed status only. A miss
// means the appointment moved concurrently between load and write.
func (s *Service) compareAndSwapStatus(ctx context.Context, appt *Appointment, to AppointmentStatus) (*Appointment, error) {
	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, []AppointmentStatus{appt.Status}, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrConcurrencyConflict)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return updated, nil
}
