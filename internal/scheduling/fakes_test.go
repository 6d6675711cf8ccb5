package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

// fakeRepo is an in-memory Repository. Its conditional writes hold the
// mutex across check and mutate, matching the atomicity the Postgres
// statements provide.
type fakeRepo struct {
	mu        sync.Mutex
	patients  map[uuid.UUID]Patient
	providers map[uuid.UUID]Provider
	weekly    map[uuid.UUID]map[time.Weekday]WeeklyAvailability
	blocks    []BlockedSlot
	appts     map[uuid.UUID]Appointment
	events    []EventLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients:  make(map[uuid.UUID]Patient),
		providers: make(map[uuid.UUID]Provider),
		weekly:    make(map[uuid.UUID]map[time.Weekday]WeeklyAvailability),
		appts:     make(map[uuid.UUID]Appointment),
	}
}

func (f *fakeRepo) addPatient(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patients[id] = Patient{ID: id, Name: "patient"}
}

func (f *fakeRepo) addProvider(id uuid.UUID, tz string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[id] = Provider{ID: id, Name: "provider", Timezone: tz}
}

func (f *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetWeeklyAvailability(_ context.Context, providerID uuid.UUID, weekday time.Weekday) (*WeeklyAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.weekly[providerID][weekday]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (f *fakeRepo) UpsertWeeklyAvailability(_ context.Context, av WeeklyAvailability) (*WeeklyAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.weekly[av.ProviderID] == nil {
		f.weekly[av.ProviderID] = make(map[time.Weekday]WeeklyAvailability)
	}
	f.weekly[av.ProviderID][av.Weekday] = av
	return &av, nil
}

func (f *fakeRepo) CreateBlockedSlot(_ context.Context, b BlockedSlot) (*BlockedSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, b)
	return &b, nil
}

func (f *fakeRepo) ListBlockedSlots(_ context.Context, providerID uuid.UUID, date timeutil.Date) ([]BlockedSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []BlockedSlot
	for _, b := range f.blocks {
		if b.ProviderID == providerID && b.Date == date {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (f *fakeRepo) hasOverlapLocked(providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) bool {
	candidate := timeutil.Interval{Start: start, End: end}
	for _, a := range f.appts {
		if a.ProviderID != providerID || a.ID == exclude || !a.Status.Committed() {
			continue
		}
		if a.Interval().Overlaps(candidate) {
			return true
		}
	}
	return false
}

func (f *fakeRepo) HasCommittedOverlap(_ context.Context, providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasOverlapLocked(providerID, start, end, exclude), nil
}

func (f *fakeRepo) ListCommittedAppointments(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	window := timeutil.Interval{Start: from, End: to}
	var out []Appointment
	for _, a := range f.appts {
		if a.ProviderID == providerID && a.Status.Committed() && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateAppointmentIfFree(_ context.Context, appt Appointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasOverlapLocked(appt.ProviderID, appt.StartAt, appt.EndAt(), uuid.Nil) {
		return nil, ErrSlotUnavailable
	}
	appt.Status = StatusScheduled
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	f.appts[appt.ID] = appt
	return &appt, nil
}

func (f *fakeRepo) RescheduleIfFree(_ context.Context, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || !a.Status.Committed() {
		return nil, ErrSlotUnavailable
	}
	newEnd := newStart.Add(time.Duration(a.DurationMinutes) * time.Minute)
	if f.hasOverlapLocked(a.ProviderID, newStart, newEnd, id) {
		return nil, ErrSlotUnavailable
	}
	a.StartAt = newStart
	a.RescheduleCount++
	a.UpdatedAt = time.Now()
	f.appts[id] = a
	return &a, nil
}

func (f *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	matched := false
	for _, st := range from {
		if a.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	f.appts[id] = a
	return &a, nil
}

func (f *fakeRepo) FindOverdueCommitted(_ context.Context, now time.Time) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flagged := make(map[uuid.UUID]bool)
	for _, ev := range f.events {
		if ev.EventType == EventAppointmentOverdue && ev.AppointmentID != nil {
			flagged[*ev.AppointmentID] = true
		}
	}
	var out []Appointment
	for _, a := range f.appts {
		if a.Status.Committed() && a.EndAt().Before(now) && !flagged[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRepo) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.EventType
	}
	return out
}

// fakeLocker serializes callbacks per provider with a blocking mutex, so
// concurrent Book calls contend on the conflict check instead of failing
// to acquire.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *fakeLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[providerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[providerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
