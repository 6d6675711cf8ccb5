package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

func mondayNineToFive(providerID uuid.UUID) WeeklyAvailability {
	return WeeklyAvailability{
		ID:          uuid.New(),
		ProviderID:  providerID,
		Weekday:     time.Monday,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		IsAvailable: true,
	}
}

func TestOpenIntervals(t *testing.T) {
	providerID := uuid.New()
	weekly := mondayNineToFive(providerID)
	block := func(start, end timeutil.TimeOfDay) BlockedSlot {
		return BlockedSlot{ProviderID: providerID, StartMinute: start, EndMinute: end}
	}

	t.Run("no record means closed", func(t *testing.T) {
		assert.Empty(t, openIntervals(nil, nil))
	})

	t.Run("unavailable template means closed", func(t *testing.T) {
		off := weekly
		off.IsAvailable = false
		assert.Empty(t, openIntervals(&off, nil))
	})

	t.Run("no blocks keeps full window", func(t *testing.T) {
		open := openIntervals(&weekly, nil)
		assert.Equal(t, []timeutil.MinuteRange{{Start: 9 * 60, End: 17 * 60}}, open)
	})

	t.Run("middle block splits window", func(t *testing.T) {
		open := openIntervals(&weekly, []BlockedSlot{block(12*60, 13*60)})
		assert.Equal(t, []timeutil.MinuteRange{
			{Start: 9 * 60, End: 12 * 60},
			{Start: 13 * 60, End: 17 * 60},
		}, open)
	})

	t.Run("block covering the day yields empty, not error", func(t *testing.T) {
		open := openIntervals(&weekly, []BlockedSlot{block(8*60, 18*60)})
		assert.Empty(t, open)
	})

	t.Run("multiple blocks", func(t *testing.T) {
		open := openIntervals(&weekly, []BlockedSlot{
			block(9*60, 9*60+30),
			block(15*60, 16*60),
		})
		assert.Equal(t, []timeutil.MinuteRange{
			{Start: 9*60 + 30, End: 15 * 60},
			{Start: 16 * 60, End: 17 * 60},
		}, open)
	})

	t.Run("never overlapping and within the day", func(t *testing.T) {
		open := openIntervals(&weekly, []BlockedSlot{
			block(10*60, 11*60),
			block(10*60+30, 12*60),
			block(16*60, 17*60),
		})
		for i, iv := range open {
			assert.True(t, iv.Start < iv.End)
			assert.True(t, iv.Start >= 0 && iv.End <= timeutil.MinutesPerDay)
			if i > 0 {
				assert.True(t, open[i-1].End <= iv.Start, "intervals must ascend without overlap")
			}
		}
	})
}

func TestSetWeeklyAvailabilityValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, newFakeLocker(), nil, DefaultPolicy(), nil)

	providerID := uuid.New()
	repo.addProvider(providerID, "America/New_York")

	_, err := svc.SetWeeklyAvailability(context.Background(), WeeklyAvailability{
		ProviderID:  providerID,
		Weekday:     time.Monday,
		StartMinute: 17 * 60,
		EndMinute:   9 * 60,
		IsAvailable: true,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SetWeeklyAvailability(context.Background(), mondayNineToFive(uuid.New()))
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestSetWeeklyAvailabilityLatestWriteWins(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, newFakeLocker(), nil, DefaultPolicy(), nil)

	providerID := uuid.New()
	repo.addProvider(providerID, "America/New_York")

	first := mondayNineToFive(providerID)
	_, err := svc.SetWeeklyAvailability(context.Background(), first)
	require.NoError(t, err)

	second := first
	second.ID = uuid.New()
	second.StartMinute = 10 * 60
	_, err = svc.SetWeeklyAvailability(context.Background(), second)
	require.NoError(t, err)

	got, err := repo.GetWeeklyAvailability(context.Background(), providerID, time.Monday)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, timeutil.TimeOfDay(10*60), got.StartMinute)
}

func TestEffectiveAvailabilityThroughStore(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, newFakeLocker(), nil, DefaultPolicy(), nil)

	providerID := uuid.New()
	repo.addProvider(providerID, "America/New_York")
	_, err := svc.SetWeeklyAvailability(context.Background(), mondayNineToFive(providerID))
	require.NoError(t, err)

	monday := timeutil.Date{Year: 2026, Month: time.March, Day: 16}
	tuesday := monday.AddDays(1)

	_, err = svc.BlockSlot(context.Background(), BlockedSlot{
		ProviderID:  providerID,
		Date:        monday,
		StartMinute: 12 * 60,
		EndMinute:   13 * 60,
		Reason:      "lunch",
	})
	require.NoError(t, err)

	open, err := svc.EffectiveAvailability(context.Background(), providerID, monday)
	require.NoError(t, err)
	assert.Equal(t, []timeutil.MinuteRange{
		{Start: 9 * 60, End: 12 * 60},
		{Start: 13 * 60, End: 17 * 60},
	}, open)

	// No template for Tuesday: fully closed.
	open, err = svc.EffectiveAvailability(context.Background(), providerID, tuesday)
	require.NoError(t, err)
	assert.Empty(t, open)
}
