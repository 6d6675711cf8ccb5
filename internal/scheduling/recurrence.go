package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

// Expand books one appointment per weekly occurrence of the request. Each
// occurrence goes through Book individually and is atomic on its own; the
// expansion as a whole never is. Individual failures do not stop later
// occurrences, so the caller can report partial success.
func (s *Service) Expand(ctx context.Context, req RecurrenceRequest) ([]BookingResult, error) {
	if err := s.validateRecurrence(req); err != nil {
		return nil, err
	}

	provider, err := s.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(provider.Timezone)
	if err != nil {
		return nil, fmt.Errorf("provider %s has invalid timezone %q: %w", req.ProviderID, provider.Timezone, err)
	}

	results := make([]BookingResult, 0, req.OccurrenceCount)
	for i := 0; i < req.OccurrenceCount; i++ {
		date := req.StartDate.AddDays(7 * i)

		// Same local time-of-day each week, so a DST change shifts the
		// instant, not the patient's wall clock.
		start, err := timeutil.ToAbsolute(date, req.Time, loc)
		if err != nil {
			results = append(results, BookingResult{Occurrence: i, Err: err})
			continue
		}

		appt, err := s.Book(ctx, BookingRequest{
			ProviderID:       req.ProviderID,
			PatientID:        req.PatientID,
			StartAt:          start,
			DurationMinutes:  req.DurationMinutes,
			ConsultationType: req.ConsultationType,
		})
		results = append(results, BookingResult{
			Occurrence:  i,
			StartAt:     start,
			Appointment: appt,
			Err:         err,
		})

		if err != nil && !expectedBookingFailure(err) {
			// Infrastructure failure: stop expanding, the remaining
			// occurrences would fail the same way.
			return results, err
		}
	}

	return results, nil
}

func (s *Service) validateRecurrence(req RecurrenceRequest) error {
	switch {
	case req.ProviderID == uuid.Nil:
		return fmt.Errorf("%w: provider id required", ErrValidation)
	case req.PatientID == uuid.Nil:
		return fmt.Errorf("%w: patient id required", ErrValidation)
	case req.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	case req.OccurrenceCount <= 0:
		return fmt.Errorf("%w: occurrence count must be positive", ErrValidation)
	case !req.Time.Valid():
		return fmt.Errorf("%w: time of day out of range", ErrValidation)
	}
	return nil
}

func expectedBookingFailure(err error) bool {
	for _, target := range []error{
		ErrValidation,
		ErrOutsideAvailability,
		ErrSlotUnavailable,
		ErrPastSlot,
		ErrConcurrencyConflict,
		timeutil.ErrInvalidLocalTime,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
