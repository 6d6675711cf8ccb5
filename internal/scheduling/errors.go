package scheduling

import "errors"

// Business-rule errors. All of these are expected and recoverable; the API
// layer maps them to client-facing statuses. Only store unavailability is
// treated as an infrastructure failure, and that surfaces as a wrapped
// driver error distinct from everything below.
var (
	ErrValidation                = errors.New("invalid request")
	ErrOutsideAvailability       = errors.New("requested time is outside the provider's availability")
	ErrSlotUnavailable           = errors.New("requested time conflicts with an existing appointment or block")
	ErrPastSlot                  = errors.New("requested time does not meet the minimum lead time")
	ErrCancellationWindowExpired = errors.New("cancellation window has expired")
	ErrRescheduleLimitExceeded   = errors.New("reschedule limit exceeded")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrConcurrencyConflict       = errors.New("lost a concurrent race for this slot, pick a slot again")
	ErrUnauthorized              = errors.New("actor is not allowed to perform this operation")
)

// Not-found sentinels, one per entity the repository loads.
var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)
