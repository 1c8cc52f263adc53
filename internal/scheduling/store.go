package scheduling

import (
	"fmt"
	"sync"
	"time"

	"github.com/carebridge/hms/pkg/interfaces"
	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/monitoring"
	"github.com/carebridge/hms/pkg/rbac"
	"github.com/carebridge/hms/pkg/types"
)

// Store is the sole authority over appointment identity, mutation and
// durable persistence. All mutating operations run inside one critical
// section covering {read, check, mutate, persist}; a failed persist rolls
// the in-memory state back so callers never observe a half-applied change.
type Store struct {
	mu        sync.Mutex
	logger    *logger.Logger
	repo      interfaces.AppointmentRepository
	directory interfaces.UserDirectory
	inventory interfaces.Inventory
	metrics   *monitoring.MetricsCollector

	calendars    map[string]*SlotCalendar
	appointments map[int]*types.Appointment
	nextID       int
}

// NewStore loads the durable appointment collection (initializing an empty
// store when none exists), recomputes the next id, and rebinds persisted
// slots into the doctors' calendars. A corrupt store is fatal.
func NewStore(
	repo interfaces.AppointmentRepository,
	directory interfaces.UserDirectory,
	inventory interfaces.Inventory,
	calendars map[string]*SlotCalendar,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) (*Store, error) {
	s := &Store{
		logger:       log,
		repo:         repo,
		directory:    directory,
		inventory:    inventory,
		metrics:      metrics,
		calendars:    calendars,
		appointments: make(map[int]*types.Appointment),
	}

	appts, err := repo.LoadAll()
	if err != nil {
		if types.IsErrorCode(err, types.ErrCodeNotFound) {
			if err := s.persistLocked(); err != nil {
				return nil, err
			}
			log.Info("Initialized empty appointment store")
			return s, nil
		}
		return nil, err
	}

	for _, apt := range appts {
		s.appointments[apt.ID] = apt
		if apt.ID >= s.nextID {
			s.nextID = apt.ID + 1
		}
		s.rebindSlot(apt)
	}

	log.Infof("Appointment store loaded with %d appointments, next id %d", len(s.appointments), s.nextID)
	return s, nil
}

// rebindSlot replaces a persisted standalone slot with the shared calendar
// slot of the same (doctor, date, time), carrying over the persisted
// availability. Slots outside the generated range stay standalone.
func (s *Store) rebindSlot(apt *types.Appointment) {
	cal, ok := s.calendars[apt.DoctorID]
	if !ok {
		return
	}
	slot := cal.SlotAt(apt.Slot.Start)
	if slot == nil {
		return
	}
	slot.Available = apt.Slot.Available
	apt.Slot = slot
}

// PatientView returns the patient-scoped capability view.
func (s *Store) PatientView() interfaces.PatientView { return patientView{s} }

// DoctorView returns the doctor-scoped capability view.
func (s *Store) DoctorView() interfaces.DoctorView { return doctorView{s} }

// PharmacistView returns the pharmacist-scoped capability view.
func (s *Store) PharmacistView() interfaces.PharmacistView { return pharmacistView{s} }

// AdministratorView returns the read-only administrative view.
func (s *Store) AdministratorView() interfaces.AdministratorView { return administratorView{s} }

type patientView struct{ s *Store }

func (v patientView) ListMine(patientID string) ([]*types.Appointment, error) {
	return v.s.listBy(func(a *types.Appointment) bool { return a.PatientID == patientID })
}

func (v patientView) Create(patientID, doctorID string, slotStart time.Time) (*types.Appointment, error) {
	return v.s.create(patientID, doctorID, slotStart)
}

func (v patientView) Reschedule(patientID string, id int, newSlotStart time.Time) error {
	return v.s.reschedule(patientID, id, newSlotStart)
}

func (v patientView) Cancel(patientID string, id int) error {
	return v.s.cancel(patientID, id)
}

type doctorView struct{ s *Store }

func (v doctorView) ListMine(doctorID string) ([]*types.Appointment, error) {
	return v.s.listBy(func(a *types.Appointment) bool { return a.DoctorID == doctorID })
}

func (v doctorView) ListUpcoming(doctorID string) ([]*types.Appointment, error) {
	return v.s.listBy(func(a *types.Appointment) bool {
		return a.DoctorID == doctorID && a.Status == types.StatusConfirmed
	})
}

func (v doctorView) Decide(doctorID string, id int, accepted bool) error {
	return v.s.decide(doctorID, id, accepted)
}

func (v doctorView) Complete(doctorID string, id int, outcome types.OutcomeRecord) error {
	return v.s.complete(doctorID, id, outcome)
}

type pharmacistView struct{ s *Store }

func (v pharmacistView) ListOutcomeRecords() ([]types.OutcomeEntry, error) {
	return v.s.listOutcomeRecords()
}

func (v pharmacistView) Dispense(id int) error {
	return v.s.dispense(id)
}

type administratorView struct{ s *Store }

func (v administratorView) ListAll() (map[int]*types.Appointment, error) {
	return v.s.listAll()
}

// listBy returns chronological snapshots of every appointment matching the
// filter.
func (s *Store) listBy(match func(*types.Appointment) bool) ([]*types.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*types.Appointment
	for _, apt := range s.appointments {
		if match(apt) {
			result = append(result, apt.Clone())
		}
	}
	types.SortAppointments(result)
	return result, nil
}

// listAll returns a snapshot of the whole store keyed by id.
func (s *Store) listAll() (map[int]*types.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[int]*types.Appointment, len(s.appointments))
	for id, apt := range s.appointments {
		result[id] = apt.Clone()
	}
	return result, nil
}

// listOutcomeRecords returns every outcome record across all appointments,
// regardless of dispensation status.
func (s *Store) listOutcomeRecords() ([]types.OutcomeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []types.OutcomeEntry
	for _, apt := range s.appointments {
		if apt.Outcome == nil {
			continue
		}
		cp := apt.Clone()
		entries = append(entries, types.OutcomeEntry{
			AppointmentID: apt.ID,
			PatientID:     apt.PatientID,
			DoctorID:      apt.DoctorID,
			Outcome:       cp.Outcome,
		})
	}
	return entries, nil
}

// create books a new Pending appointment for the patient against a doctor's
// slot. The slot is validated but not claimed; claiming happens when the
// doctor accepts.
func (s *Store) create(patientID, doctorID string, slotStart time.Time) (*types.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created *types.Appointment
	err := func() error {
		if _, err := s.directory.Lookup(patientID); err != nil {
			return types.NewNotFoundError(fmt.Sprintf("patient %s is not registered", patientID))
		}
		if _, err := s.directory.Lookup(doctorID); err != nil {
			return types.NewNotFoundError(fmt.Sprintf("doctor %s is not registered", doctorID))
		}

		slot, err := s.resolveSlot(doctorID, slotStart)
		if err != nil {
			return err
		}
		if err := s.ensureSlotFree(slot, -1); err != nil {
			return err
		}

		apt := &types.Appointment{
			ID:        s.nextID,
			PatientID: patientID,
			DoctorID:  doctorID,
			Status:    types.StatusPending,
			Slot:      slot,
		}
		s.appointments[apt.ID] = apt

		if err := s.persistLocked(); err != nil {
			delete(s.appointments, apt.ID)
			return err
		}
		s.nextID++

		created = apt
		return nil
	}()

	s.recordOperation("create", err)
	s.logger.Audit(patientID, "book_appointment", "appointment", err == nil, map[string]interface{}{
		"doctor_id":  doctorID,
		"slot_start": slotStart.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Created appointment %d for patient %s with doctor %s at %s",
		created.ID, patientID, doctorID, slotStart.Format(time.RFC3339))
	return created.Clone(), nil
}

// decide applies the doctor's accept/decline decision. Accepting claims the
// slot through an atomic check-and-set; declining leaves it available.
func (s *Store) decide(doctorID string, id int, accepted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := func() error {
		apt, err := s.ownedBy(id, doctorID, false)
		if err != nil {
			return err
		}

		if accepted {
			if err := s.ensureSlotFree(apt.Slot, apt.ID); err != nil {
				s.recordSlotClaim("conflict")
				return err
			}
		}

		prevStatus := apt.Status
		if err := decide(apt, accepted); err != nil {
			return err
		}
		if accepted {
			apt.Slot.Claim()
			s.recordSlotClaim("claimed")
		}

		if err := s.persistLocked(); err != nil {
			apt.Status = prevStatus
			if accepted {
				apt.Slot.Release()
			}
			return err
		}
		return nil
	}()

	s.recordOperation("decide", err)
	s.logger.Audit(doctorID, "decide_appointment", "appointment", err == nil, map[string]interface{}{
		"appointment_id": id,
		"accepted":       accepted,
	})
	return err
}

// complete records the outcome of a Confirmed appointment.
func (s *Store) complete(doctorID string, id int, outcome types.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := func() error {
		apt, err := s.ownedBy(id, doctorID, false)
		if err != nil {
			return err
		}

		prevStatus := apt.Status
		if err := complete(apt, outcome); err != nil {
			return err
		}

		if err := s.persistLocked(); err != nil {
			apt.Status = prevStatus
			apt.Outcome = nil
			return err
		}
		return nil
	}()

	s.recordOperation("complete", err)
	s.logger.Audit(doctorID, "complete_appointment", "appointment", err == nil, map[string]interface{}{
		"appointment_id": id,
		"service_type":   string(outcome.ServiceType),
	})
	return err
}

// reschedule moves a Pending or Confirmed appointment to a new slot. The new
// slot is validated before the old one is released, so the appointment never
// sits without a slot; a Confirmed appointment's claim moves with it.
func (s *Store) reschedule(patientID string, id int, newSlotStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := func() error {
		apt, err := s.ownedBy(id, patientID, true)
		if err != nil {
			return err
		}
		if err := reschedulable(apt); err != nil {
			return err
		}

		newSlot, err := s.resolveSlot(apt.DoctorID, newSlotStart)
		if err != nil {
			return err
		}
		if newSlot == apt.Slot {
			return nil
		}
		if err := s.ensureSlotFree(newSlot, apt.ID); err != nil {
			s.recordSlotClaim("conflict")
			return err
		}

		oldSlot := apt.Slot
		oldAvailable := oldSlot.Available
		oldSlot.Release()
		apt.Slot = newSlot
		if apt.Status == types.StatusConfirmed {
			newSlot.Claim()
			s.recordSlotClaim("claimed")
		}

		if err := s.persistLocked(); err != nil {
			apt.Slot = oldSlot
			oldSlot.Available = oldAvailable
			newSlot.Release()
			return err
		}
		return nil
	}()

	s.recordOperation("reschedule", err)
	s.logger.Audit(patientID, "reschedule_appointment", "appointment", err == nil, map[string]interface{}{
		"appointment_id": id,
		"new_slot_start": newSlotStart.Format(time.RFC3339),
	})
	return err
}

// cancel releases the slot of a Pending or Confirmed appointment and marks
// it Canceled. The appointment remains in the store as a historical record.
func (s *Store) cancel(patientID string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := func() error {
		apt, err := s.ownedBy(id, patientID, true)
		if err != nil {
			return err
		}
		if err := reschedulable(apt); err != nil {
			return err
		}

		prevStatus := apt.Status
		prevAvailable := apt.Slot.Available
		apt.Slot.Release()
		apt.Status = types.StatusCanceled

		if err := s.persistLocked(); err != nil {
			apt.Status = prevStatus
			apt.Slot.Available = prevAvailable
			return err
		}
		s.recordSlotClaim("released")
		return nil
	}()

	s.recordOperation("cancel", err)
	s.logger.Audit(patientID, "cancel_appointment", "appointment", err == nil, map[string]interface{}{
		"appointment_id": id,
	})
	return err
}

// dispense marks a completed appointment's prescription as fulfilled,
// deducting the medicines through the inventory capability.
func (s *Store) dispense(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := func() error {
		apt, ok := s.appointments[id]
		if !ok {
			return types.NewNotFoundError(fmt.Sprintf("appointment %d does not exist", id))
		}
		if apt.Outcome == nil {
			return types.NewNotFoundError(fmt.Sprintf("appointment %d has no outcome record", id))
		}
		if apt.Outcome.Dispensation == types.DispensationDispensed {
			return types.NewAlreadyDispensedError(fmt.Sprintf("appointment %d prescription already dispensed", id))
		}

		for _, item := range apt.Outcome.Prescription {
			if err := s.inventory.Validate(item.Medicine, item.Quantity); err != nil {
				return fmt.Errorf("prescription cannot be fulfilled: %w", err)
			}
		}
		for _, item := range apt.Outcome.Prescription {
			if err := s.inventory.Deduct(item.Medicine, item.Quantity); err != nil {
				return types.NewInternalError("inventory deduction failed", err)
			}
		}

		apt.Outcome.Dispensation = types.DispensationDispensed
		if err := s.persistLocked(); err != nil {
			apt.Outcome.Dispensation = types.DispensationPending
			return err
		}
		return nil
	}()

	if s.metrics != nil {
		s.metrics.RecordDispensation(err)
	}
	s.recordOperation("dispense", err)
	s.logger.Audit(rbac.RolePharmacist, "dispense_prescription", "outcome_record", err == nil, map[string]interface{}{
		"appointment_id": id,
	})
	return err
}

// RenderCalendar renders a doctor's month grid under the store lock so the
// availability snapshot is consistent.
func (s *Store) RenderCalendar(doctorID string, year int, month time.Month, onlyAvailable bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.calendars[doctorID]
	if !ok {
		return "", types.NewNotFoundError(fmt.Sprintf("doctor %s has no calendar", doctorID))
	}
	return cal.RenderMonth(year, month, onlyAvailable), nil
}

// SlotsOn returns snapshot copies of a doctor's slots for one date.
func (s *Store) SlotsOn(doctorID string, date time.Time) ([]types.AppointmentSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, ok := s.calendars[doctorID]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("doctor %s has no calendar", doctorID))
	}

	slots := cal.SlotsOn(date)
	result := make([]types.AppointmentSlot, len(slots))
	for i, slot := range slots {
		result[i] = *slot
	}
	return result, nil
}

// ownedBy fetches an appointment and authorizes the actor against its owning
// patient or doctor. NotFound is reported before Forbidden so callers cannot
// probe foreign ids.
func (s *Store) ownedBy(id int, actorID string, patient bool) (*types.Appointment, error) {
	apt, ok := s.appointments[id]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("appointment %d does not exist", id))
	}
	owner := apt.DoctorID
	if patient {
		owner = apt.PatientID
	}
	if owner != actorID {
		return nil, types.NewForbiddenError(fmt.Sprintf("appointment %d does not belong to %s", id, actorID))
	}
	return apt, nil
}

// resolveSlot looks up the calendar slot for (doctor, start).
func (s *Store) resolveSlot(doctorID string, start time.Time) (*types.AppointmentSlot, error) {
	cal, ok := s.calendars[doctorID]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("doctor %s has no calendar", doctorID))
	}
	slot := cal.SlotAt(start)
	if slot == nil {
		return nil, types.NewNotFoundError(fmt.Sprintf("doctor %s has no slot at %s", doctorID, start.Format(time.RFC3339)))
	}
	return slot, nil
}

// ensureSlotFree is the check half of the slot claim check-and-set: the slot
// must be available and not referenced by any other active appointment.
// Runs under the store lock, so check and subsequent claim are atomic.
func (s *Store) ensureSlotFree(slot *types.AppointmentSlot, excludeID int) error {
	if !slot.Available {
		return types.NewSlotUnavailableError(fmt.Sprintf("slot %s %s is already claimed", slot.DateKey(), slot.TimeKey()))
	}
	for _, other := range s.appointments {
		if other.ID == excludeID || other.Status.Terminal() && other.Status != types.StatusCompleted {
			continue
		}
		if other.DoctorID == slot.DoctorID && other.Slot.Start.Equal(slot.Start) {
			return types.NewSlotUnavailableError(fmt.Sprintf(
				"slot %s %s is held by appointment %d", slot.DateKey(), slot.TimeKey(), other.ID))
		}
	}
	return nil
}

// persistLocked rewrites the durable store from the in-memory collection.
// Callers must hold the store lock.
func (s *Store) persistLocked() error {
	appts := make([]*types.Appointment, 0, len(s.appointments))
	for _, apt := range s.appointments {
		appts = append(appts, apt)
	}

	start := time.Now()
	err := s.repo.SaveAll(appts)
	if s.metrics != nil {
		s.metrics.RecordStoreRewrite(time.Since(start), err)
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to rewrite appointment store")
		return types.NewInternalError("failed to persist appointment store", err)
	}
	return nil
}

func (s *Store) recordOperation(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordAppointmentOperation(operation, err)
	}
}

func (s *Store) recordSlotClaim(result string) {
	if s.metrics != nil {
		s.metrics.RecordSlotClaim(result)
	}
}
