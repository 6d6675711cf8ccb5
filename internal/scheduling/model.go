package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/timeutil"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Committed reports whether the status holds a provider's time, i.e.
// counts toward conflict detection.
func (s AppointmentStatus) Committed() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Terminal reports whether no further transitions are allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type ConsultationType string

const (
	ConsultationVideo      ConsultationType = "video"
	ConsultationPhone      ConsultationType = "phone"
	ConsultationFollowUp   ConsultationType = "follow_up"
	ConsultationFirstVisit ConsultationType = "first_visit"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Timezone  string // IANA name, drives local day boundaries
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeeklyAvailability is a provider's recurring open-hours template for one
// weekday. At most one record per (provider, weekday) is authoritative;
// writes replace the previous record for that day.
type WeeklyAvailability struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Weekday     time.Weekday
	StartMinute timeutil.TimeOfDay
	EndMinute   timeutil.TimeOfDay
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BlockedSlot is a one-off override removing availability on a specific
// date. Intersections with the weekly template become unbookable.
type BlockedSlot struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Date        timeutil.Date
	StartMinute timeutil.TimeOfDay
	EndMinute   timeutil.TimeOfDay
	Reason      string
	CreatedAt   time.Time
}

type Appointment struct {
	ID               uuid.UUID
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	StartAt          time.Time // absolute instant
	DurationMinutes  int
	ConsultationType ConsultationType
	Status           AppointmentStatus
	RescheduleCount  int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EndAt is the exclusive end of the appointment's interval.
func (a *Appointment) EndAt() time.Time {
	return a.StartAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Interval returns the half-open [StartAt, EndAt) interval.
func (a *Appointment) Interval() timeutil.Interval {
	return timeutil.Interval{Start: a.StartAt, End: a.EndAt()}
}

// Slot is a computed candidate booking interval. Slots are produced on
// demand and never persisted or cached across requests: the underlying
// appointments and blocks can change between queries.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// BookingRequest is the input to Book.
type BookingRequest struct {
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	StartAt          time.Time
	DurationMinutes  int
	ConsultationType ConsultationType
}

// RecurrenceRequest asks for the same weekly slot across several future
// occurrences. It is ephemeral: expanded into candidate appointments,
// never persisted as its own entity.
type RecurrenceRequest struct {
	ProviderID       uuid.UUID
	PatientID        uuid.UUID
	StartDate        timeutil.Date
	Time             timeutil.TimeOfDay
	DurationMinutes  int
	ConsultationType ConsultationType
	OccurrenceCount  int
}

// BookingResult reports the outcome of one occurrence of a recurrence
// expansion. Err is nil on success.
type BookingResult struct {
	Occurrence  int
	StartAt     time.Time
	Appointment *Appointment
	Err         error
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
