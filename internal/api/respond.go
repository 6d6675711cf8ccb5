package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/telecare/scheduling-engine/internal/scheduling"
	"github.com/telecare/scheduling-engine/internal/timeutil"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeSchedulingError maps the engine's business-rule errors onto client
// statuses. Every business error reaches the caller with enough detail to
// adjust; only unrecognized errors degrade to a generic 500.
func writeSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, timeutil.ErrInvalidLocalTime):
		writeError(w, http.StatusBadRequest, "invalid_local_time", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPastSlot):
		writeError(w, http.StatusUnprocessableEntity, "past_slot", err.Error())
	case errors.Is(err, scheduling.ErrOutsideAvailability):
		writeError(w, http.StatusUnprocessableEntity, "outside_availability", err.Error())
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "concurrency_conflict", "lost a race for this slot, pick a slot again")
	case errors.Is(err, scheduling.ErrCancellationWindowExpired):
		writeError(w, http.StatusConflict, "cancellation_window_expired", err.Error())
	case errors.Is(err, scheduling.ErrRescheduleLimitExceeded):
		writeError(w, http.StatusConflict, "reschedule_limit_exceeded", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, scheduling.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected failure")
	}
}
