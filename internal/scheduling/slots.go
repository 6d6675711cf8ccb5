package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

// GenerateSlots tiles the provider's effective availability over an
// inclusive date range into fixed-duration candidate slots. Trailing
// remainders shorter than one slot are dropped, never offered. Slots
// whose start has already passed are reported unavailable regardless of
// conflict state. The result is a pure function of current store state:
// two calls with no intervening mutation return identical output.
//
// Dates are interpreted in the provider's timezone, which owns the day
// boundaries; rendering in the caller's timezone is the API layer's job
// since instants compare timezone-independently.
func (s *Service) GenerateSlots(ctx context.Context, providerID uuid.UUID, from, to timeutil.Date, slotMinutes int) ([]Slot, error) {
	if slotMinutes <= 0 {
		slotMinutes = s.policy.DefaultSlotMinutes
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: date range end precedes start", ErrValidation)
	}

	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(provider.Timezone)
	if err != nil {
		return nil, fmt.Errorf("provider %s has invalid timezone %q: %w", providerID, provider.Timezone, err)
	}

	now := s.now()
	slotDur := time.Duration(slotMinutes) * time.Minute

	var slots []Slot
	for date := from; !date.After(to); date = date.AddDays(1) {
		open, err := s.EffectiveAvailability(ctx, providerID, date)
		if err != nil {
			return nil, err
		}
		if len(open) == 0 {
			continue
		}

		// One range query covers every conflict check for the day. The
		// anchor must not insist on local midnight existing: some zones
		// spring forward at 00:00, and time.Date's normalized instant
		// still bounds the day.
		dayStart := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, loc)
		busy, err := s.repo.ListCommittedAppointments(ctx, providerID, dayStart, dayStart.Add(24*time.Hour+time.Hour))
		if err != nil {
			return nil, fmt.Errorf("load appointments for %s: %w", date, err)
		}

		for _, iv := range open {
			for m := iv.Start; m+timeutil.TimeOfDay(slotMinutes) <= iv.End; m += timeutil.TimeOfDay(slotMinutes) {
				start, err := timeutil.ToAbsolute(date, m, loc)
				if err != nil {
					// Local start erased by a DST gap; there is no such
					// wall-clock slot to offer.
					continue
				}
				end := start.Add(slotDur)

				available := start.After(now)
				if available {
					for _, a := range busy {
						if a.Interval().Overlaps(timeutil.Interval{Start: start, End: end}) {
							available = false
							break
						}
					}
				}

				slots = append(slots, Slot{Start: start, End: end, Available: available})
			}
		}
	}

	return slots, nil
}
