package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

// EffectiveAvailability computes the provider-local open intervals for one
// calendar date: the weekly template for that weekday minus every blocked
// slot on the date. The result is ascending and non-overlapping. A day with
// no template, an unavailable template, or blocks covering the whole
// window yields an empty slice, not an error.
func (s *Service) EffectiveAvailability(ctx context.Context, providerID uuid.UUID, date timeutil.Date) ([]timeutil.MinuteRange, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(provider.Timezone)
	if err != nil {
		return nil, fmt.Errorf("provider %s has invalid timezone %q: %w", providerID, provider.Timezone, err)
	}

	weekly, err := s.repo.GetWeeklyAvailability(ctx, providerID, timeutil.DayOfWeek(date, loc))
	if err != nil {
		return nil, fmt.Errorf("load weekly availability: %w", err)
	}

	blocks, err := s.repo.ListBlockedSlots(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("load blocked slots: %w", err)
	}

	return openIntervals(weekly, blocks), nil
}

// openIntervals subtracts blocks from the day's template window. Pure so
// the interval arithmetic is testable without a store.
func openIntervals(weekly *WeeklyAvailability, blocks []BlockedSlot) []timeutil.MinuteRange {
	if weekly == nil || !weekly.IsAvailable || weekly.StartMinute >= weekly.EndMinute {
		return nil
	}

	open := []timeutil.MinuteRange{{Start: weekly.StartMinute, End: weekly.EndMinute}}

	for _, b := range blocks {
		cut := timeutil.MinuteRange{Start: b.StartMinute, End: b.EndMinute}
		if cut.Start >= cut.End {
			continue
		}
		var next []timeutil.MinuteRange
		for _, iv := range open {
			next = append(next, iv.Subtract(cut)...)
		}
		open = next
	}

	sort.Slice(open, func(i, j int) bool { return open[i].Start < open[j].Start })
	return open
}

// SetWeeklyAvailability validates and upserts one weekday of a provider's
// template. Duplicate writes for the same weekday replace the prior record.
func (s *Service) SetWeeklyAvailability(ctx context.Context, av WeeklyAvailability) (*WeeklyAvailability, error) {
	if av.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider id required", ErrValidation)
	}
	if !av.StartMinute.Valid() || !av.EndMinute.Valid() || av.StartMinute >= av.EndMinute {
		return nil, fmt.Errorf("%w: start %s must precede end %s within one day", ErrValidation, av.StartMinute, av.EndMinute)
	}
	if _, err := s.repo.GetProviderByID(ctx, av.ProviderID); err != nil {
		return nil, err
	}
	if av.ID == uuid.Nil {
		av.ID = uuid.New()
	}

	saved, err := s.repo.UpsertWeeklyAvailability(ctx, av)
	if err != nil {
		return nil, fmt.Errorf("upsert weekly availability: %w", err)
	}
	s.log.Infow("weekly availability set",
		"provider_id", av.ProviderID, "weekday", av.Weekday.String(),
		"start", av.StartMinute.String(), "end", av.EndMinute.String(), "available", av.IsAvailable)
	return saved, nil
}

// BlockSlot records a one-off unavailability override for a provider.
func (s *Service) BlockSlot(ctx context.Context, b BlockedSlot) (*BlockedSlot, error) {
	if b.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider id required", ErrValidation)
	}
	if !b.StartMinute.Valid() || !b.EndMinute.Valid() || b.StartMinute >= b.EndMinute {
		return nil, fmt.Errorf("%w: start %s must precede end %s within one day", ErrValidation, b.StartMinute, b.EndMinute)
	}
	if _, err := s.repo.GetProviderByID(ctx, b.ProviderID); err != nil {
		return nil, err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	created, err := s.repo.CreateBlockedSlot(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("create blocked slot: %w", err)
	}
	s.log.Infow("slot blocked",
		"provider_id", b.ProviderID, "date", b.Date.String(),
		"start", b.StartMinute.String(), "end", b.EndMinute.String(), "reason", b.Reason)
	return created, nil
}
