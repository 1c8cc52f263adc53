package scheduling

import (
	"fmt"
	"strings"

	"github.com/carebridge/hms/pkg/types"
)

// legalTransitions enumerates every edge of the appointment state machine.
// Pending splits on the doctor's decision, Confirmed can complete, and the
// patient can cancel anything not yet terminal. Declined, Canceled and
// Completed have no outgoing edges.
var legalTransitions = map[types.AppointmentStatus][]types.AppointmentStatus{
	types.StatusPending:   {types.StatusConfirmed, types.StatusDeclined, types.StatusCanceled},
	types.StatusConfirmed: {types.StatusCompleted, types.StatusCanceled},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to types.AppointmentStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves an appointment to the target status, or fails with
// InvalidState leaving the appointment untouched.
func transition(a *types.Appointment, to types.AppointmentStatus) error {
	if !CanTransition(a.Status, to) {
		return types.NewInvalidStateError(
			fmt.Sprintf("appointment %d cannot move from %s to %s", a.ID, a.Status, to),
			map[string]interface{}{"from": string(a.Status), "to": string(to)})
	}
	a.Status = to
	return nil
}

// decide applies the doctor's accept/decline decision to a Pending
// appointment. Slot claiming is the store's responsibility.
func decide(a *types.Appointment, accepted bool) error {
	if accepted {
		return transition(a, types.StatusConfirmed)
	}
	return transition(a, types.StatusDeclined)
}

// validateOutcome rejects outcomes the persisted form cannot represent:
// unknown service types, empty or separator-bearing medicine names, and
// non-positive quantities. The checks mirror what decodeRecord will accept,
// so a persisted outcome always loads back.
func validateOutcome(outcome types.OutcomeRecord) error {
	if !outcome.ServiceType.Valid() {
		return types.NewValidationError(
			fmt.Sprintf("unknown service type %q", outcome.ServiceType), nil)
	}
	for _, item := range outcome.Prescription {
		if item.Medicine == "" {
			return types.NewValidationError("prescription item has an empty medicine name", nil)
		}
		if strings.ContainsAny(item.Medicine, prescriptionSeparator+quantitySeparator) {
			return types.NewValidationError(
				fmt.Sprintf("medicine name %q may not contain %q or %q",
					item.Medicine, prescriptionSeparator, quantitySeparator), nil)
		}
		if item.Quantity <= 0 {
			return types.NewValidationError(
				fmt.Sprintf("invalid quantity %d for medicine %s", item.Quantity, item.Medicine), nil)
		}
	}
	return nil
}

// complete attaches the outcome record and moves the appointment to
// Completed. The outcome is created exactly once.
func complete(a *types.Appointment, outcome types.OutcomeRecord) error {
	if a.Status == types.StatusCompleted {
		return types.NewAlreadyCompletedError(
			fmt.Sprintf("appointment %d already has an outcome record", a.ID))
	}
	if err := validateOutcome(outcome); err != nil {
		return err
	}
	if err := transition(a, types.StatusCompleted); err != nil {
		return err
	}

	record := outcome
	record.Prescription = append([]types.PrescriptionItem(nil), outcome.Prescription...)
	record.Dispensation = types.DispensationPending
	a.Outcome = &record
	return nil
}

// reschedulable reports whether the appointment may still change slots.
func reschedulable(a *types.Appointment) error {
	if a.Status != types.StatusPending && a.Status != types.StatusConfirmed {
		return types.NewInvalidStateError(
			fmt.Sprintf("appointment %d is %s and can no longer be rescheduled or canceled", a.ID, a.Status),
			map[string]interface{}{"status": string(a.Status)})
	}
	return nil
}
