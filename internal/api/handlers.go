package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/telecare/scheduling-engine/internal/authz"
	"github.com/telecare/scheduling-engine/internal/scheduling"
	"github.com/telecare/scheduling-engine/internal/timeutil"
)

// actorFromRequest resolves the caller identity the upstream gateway
// attaches. Authorization itself is re-checked per operation; the engine
// only trusts that the headers are authentic.
func actorFromRequest(r *http.Request) (authz.Actor, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return authz.Actor{}, false
	}
	role := authz.Role(strings.ToLower(r.Header.Get("X-User-Role")))
	switch role {
	case authz.RolePatient, authz.RoleProvider, authz.RoleAdmin:
		return authz.Actor{UserID: id, Role: role}, true
	}
	return authz.Actor{}, false
}

func requireActor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_identity", "X-User-ID and X-User-Role headers are required")
	}
	return actor, ok
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func getSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		from, err := timeutil.ParseDate(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := timeutil.ParseDate(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		tzName := q.Get("tz")
		if tzName == "" {
			tzName = "UTC"
		}
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timezone", fmt.Sprintf("unknown timezone %q", tzName))
			return
		}

		duration := 0
		if v := q.Get("duration"); v != "" {
			duration, err = strconv.Atoi(v)
			if err != nil || duration < 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive integer of minutes")
				return
			}
		}

		slots, err := svc.GenerateSlots(r.Context(), providerID, from, to, duration)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		resp := SlotListResponse{
			ProviderID: providerID,
			Timezone:   tzName,
			Slots:      make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{
				Start:     s.Start.In(loc).Format(time.RFC3339),
				End:       s.End.In(loc).Format(time.RFC3339),
				Available: s.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		startAt, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at must be RFC 3339")
			return
		}

		own := authz.Ownership{PatientID: patientID, ProviderID: providerID}
		if !authz.Allowed(actor, authz.OpBook, own) {
			writeError(w, http.StatusForbidden, "unauthorized", "patients may only book for themselves")
			return
		}

		appt, err := svc.Book(r.Context(), scheduling.BookingRequest{
			ProviderID:       providerID,
			PatientID:        patientID,
			StartAt:          startAt,
			DurationMinutes:  req.DurationMinutes,
			ConsultationType: scheduling.ConsultationType(req.ConsultationType),
		})
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func recurringBookingHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req RecurringBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		startDate, err := timeutil.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}
		tod, err := timeutil.ParseHHMM(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		own := authz.Ownership{PatientID: patientID, ProviderID: providerID}
		if !authz.Allowed(actor, authz.OpBook, own) {
			writeError(w, http.StatusForbidden, "unauthorized", "patients may only book for themselves")
			return
		}

		results, err := svc.Expand(r.Context(), scheduling.RecurrenceRequest{
			ProviderID:       providerID,
			PatientID:        patientID,
			StartDate:        startDate,
			Time:             tod,
			DurationMinutes:  req.DurationMinutes,
			ConsultationType: scheduling.ConsultationType(req.ConsultationType),
			OccurrenceCount:  req.OccurrenceCount,
		})
		if err != nil && len(results) == 0 {
			writeSchedulingError(w, err)
			return
		}

		resp := RecurringBookingResponse{Results: make([]OccurrenceResult, 0, len(results))}
		for _, res := range results {
			out := OccurrenceResult{Occurrence: res.Occurrence}
			if !res.StartAt.IsZero() {
				start := res.StartAt
				out.StartAt = &start
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
				resp.Failed++
			} else {
				ar := toAppointmentResponse(res.Appointment)
				out.Appointment = &ar
				resp.Booked++
			}
			resp.Results = append(resp.Results, out)
		}

		// 207-style partial reporting: the expansion is never atomic
		// across occurrences.
		status := http.StatusCreated
		if resp.Booked == 0 {
			status = http.StatusConflict
		} else if resp.Failed > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, resp)
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		target := scheduling.AppointmentStatus(strings.ToLower(req.Status))
		appt, err := svc.UpdateStatus(r.Context(), id, target, actor)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		newStart, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at must be RFC 3339")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, newStart, actor)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func setWeeklyAvailabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		providerID, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		if !authz.Allowed(actor, authz.OpManageAvailability, authz.Ownership{ProviderID: providerID}) {
			writeError(w, http.StatusForbidden, "unauthorized", "only the provider or an admin may edit availability")
			return
		}

		var req WeeklyAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		weekday, ok := weekdays[strings.ToLower(req.Weekday)]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be monday..sunday")
			return
		}
		start, err := timeutil.ParseHHMM(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}
		end, err := timeutil.ParseHHMM(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return
		}

		saved, err := svc.SetWeeklyAvailability(r.Context(), scheduling.WeeklyAvailability{
			ProviderID:  providerID,
			Weekday:     weekday,
			StartMinute: start,
			EndMinute:   end,
			IsAvailable: req.IsAvailable,
		})
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, saved)
	}
}

func blockSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		providerID, err := pathUUID(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		if !authz.Allowed(actor, authz.OpManageAvailability, authz.Ownership{ProviderID: providerID}) {
			writeError(w, http.StatusForbidden, "unauthorized", "only the provider or an admin may block time")
			return
		}

		var req BlockSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := timeutil.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := timeutil.ParseHHMM(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}
		end, err := timeutil.ParseHHMM(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return
		}

		created, err := svc.BlockSlot(r.Context(), scheduling.BlockedSlot{
			ProviderID:  providerID,
			Date:        date,
			StartMinute: start,
			EndMinute:   end,
			Reason:      req.Reason,
		})
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}
