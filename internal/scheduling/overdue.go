package scheduling

import "context"

// FlagOverdueAppointments emits APPOINTMENT_OVERDUE for every committed
// appointment whose interval has fully passed without a terminal status.
// The appointment record itself is not touched: marking a no-show stays a
// deliberate provider or admin action. Returns how many were flagged.
func (s *Service) FlagOverdueAppointments(ctx context.Context) (int, error) {
	overdue, err := s.repo.FindOverdueCommitted(ctx, s.now())
	if err != nil {
		return 0, err
	}

	for _, appt := range overdue {
		s.emit(ctx, appt.ID, EventAppointmentOverdue, map[string]any{
			"appointment_id": appt.ID.String(),
			"provider_id":    appt.ProviderID.String(),
			"patient_id":     appt.PatientID.String(),
			"start_at":       appt.StartAt,
			"status":         string(appt.Status),
		})
		s.log.Infow("appointment overdue",
			"appointment_id", appt.ID,
			"provider_id", appt.ProviderID,
			"start_at", appt.StartAt,
		)
	}

	return len(overdue), nil
}
