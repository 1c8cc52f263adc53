package types

import (
	"fmt"
	"sort"
	"time"
)

// AppointmentStatus represents appointment status values
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusDeclined  AppointmentStatus = "declined"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
)

// Terminal reports whether no further status transition is possible.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// DispensationStatus represents the pharmacist-side state of a prescription
type DispensationStatus string

const (
	DispensationPending   DispensationStatus = "pending"
	DispensationDispensed DispensationStatus = "dispensed"
)

// ServiceType represents the kind of service recorded on a completed appointment
type ServiceType string

const (
	ServiceConsultation ServiceType = "consultation"
	ServiceXRay         ServiceType = "xray"
	ServiceBloodTest    ServiceType = "blood_test"
)

// Valid reports whether s is one of the defined service types.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceConsultation, ServiceXRay, ServiceBloodTest:
		return true
	}
	return false
}

// SlotDateFormat and SlotTimeFormat are the canonical encodings of a slot's
// calendar date and time of day, both in persistence and over the API.
const (
	SlotDateFormat = "2006-01-02"
	SlotTimeFormat = "15:04"
)

// AppointmentSlot is a single bookable 30-minute unit in a doctor's calendar.
// Identity is (doctor, date, time of day); Start is immutable once generated.
type AppointmentSlot struct {
	DoctorID  string    `json:"doctor_id"`
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

// Claim marks the slot unavailable. Idempotent.
func (s *AppointmentSlot) Claim() {
	s.Available = false
}

// Release marks the slot available again. Idempotent.
func (s *AppointmentSlot) Release() {
	s.Available = true
}

// DateKey returns the slot's calendar date in SlotDateFormat.
func (s *AppointmentSlot) DateKey() string {
	return s.Start.Format(SlotDateFormat)
}

// TimeKey returns the slot's time of day in SlotTimeFormat.
func (s *AppointmentSlot) TimeKey() string {
	return s.Start.Format(SlotTimeFormat)
}

// PrescriptionItem is a single (medicine, quantity) pair on an outcome record.
type PrescriptionItem struct {
	Medicine string `json:"medicine"`
	Quantity int    `json:"quantity"`
}

func (p PrescriptionItem) String() string {
	return fmt.Sprintf("%s:%d", p.Medicine, p.Quantity)
}

// OutcomeRecord is the clinical and dispensation result of a completed
// appointment. It is created at most once, by the completing doctor.
type OutcomeRecord struct {
	ServiceType       ServiceType        `json:"service_type"`
	ConsultationNotes string             `json:"consultation_notes"`
	Prescription      []PrescriptionItem `json:"prescription"`
	Dispensation      DispensationStatus `json:"dispensation_status"`
}

// Appointment binds a patient, a doctor and a slot. The ID is assigned
// sequentially by the store and never reused; PatientID and DoctorID are
// immutable after creation.
type Appointment struct {
	ID        int               `json:"id"`
	PatientID string            `json:"patient_id"`
	DoctorID  string            `json:"doctor_id"`
	Status    AppointmentStatus `json:"status"`
	Slot      *AppointmentSlot  `json:"slot"`
	Outcome   *OutcomeRecord    `json:"outcome,omitempty"`
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing store-internal state.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	if a.Slot != nil {
		slot := *a.Slot
		cp.Slot = &slot
	}
	if a.Outcome != nil {
		out := *a.Outcome
		out.Prescription = append([]PrescriptionItem(nil), a.Outcome.Prescription...)
		cp.Outcome = &out
	}
	return &cp
}

// OutcomeEntry pairs an outcome record with the appointment that owns it,
// for pharmacist listings.
type OutcomeEntry struct {
	AppointmentID int            `json:"appointment_id"`
	PatientID     string         `json:"patient_id"`
	DoctorID      string         `json:"doctor_id"`
	Outcome       *OutcomeRecord `json:"outcome"`
}

// SortAppointments orders appointments chronologically by slot start,
// falling back to id for appointments sharing a slot time.
func SortAppointments(appts []*Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Slot.Start.Equal(appts[j].Slot.Start) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].Slot.Start.Before(appts[j].Slot.Start)
	})
}
