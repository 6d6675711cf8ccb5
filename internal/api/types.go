package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/scheduling"
)

type BookAppointmentRequest struct {
	ProviderID       string `json:"provider_id"`
	PatientID        string `json:"patient_id"`
	StartAt          string `json:"start_at"` // RFC 3339
	DurationMinutes  int    `json:"duration_minutes"`
	ConsultationType string `json:"consultation_type"`
}

type RecurringBookingRequest struct {
	ProviderID       string `json:"provider_id"`
	PatientID        string `json:"patient_id"`
	StartDate        string `json:"start_date"` // YYYY-MM-DD, provider-local
	Time             string `json:"time"`       // HH:MM, provider-local
	DurationMinutes  int    `json:"duration_minutes"`
	ConsultationType string `json:"consultation_type"`
	OccurrenceCount  int    `json:"occurrence_count"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type RescheduleRequest struct {
	StartAt string `json:"start_at"` // RFC 3339
}

type WeeklyAvailabilityRequest struct {
	Weekday     string `json:"weekday"`    // monday .. sunday
	StartTime   string `json:"start_time"` // HH:MM, provider-local
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

type BlockSlotRequest struct {
	Date      string `json:"date"` // YYYY-MM-DD, provider-local
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

type AppointmentResponse struct {
	ID               uuid.UUID `json:"id"`
	ProviderID       uuid.UUID `json:"provider_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	StartAt          time.Time `json:"start_at"`
	DurationMinutes  int       `json:"duration_minutes"`
	ConsultationType string    `json:"consultation_type"`
	Status           string    `json:"status"`
	RescheduleCount  int       `json:"reschedule_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		ProviderID:       a.ProviderID,
		PatientID:        a.PatientID,
		StartAt:          a.StartAt,
		DurationMinutes:  a.DurationMinutes,
		ConsultationType: string(a.ConsultationType),
		Status:           string(a.Status),
		RescheduleCount:  a.RescheduleCount,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type SlotResponse struct {
	Start     string `json:"start"` // RFC 3339, rendered in the requested timezone
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type SlotListResponse struct {
	ProviderID uuid.UUID      `json:"provider_id"`
	Timezone   string         `json:"timezone"`
	Slots      []SlotResponse `json:"slots"`
}

type OccurrenceResult struct {
	Occurrence  int                  `json:"occurrence"`
	StartAt     *time.Time           `json:"start_at,omitempty"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type RecurringBookingResponse struct {
	Results []OccurrenceResult `json:"results"`
	Booked  int                `json:"booked"`
	Failed  int                `json:"failed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
