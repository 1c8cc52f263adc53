package interfaces

import (
	"time"

	"github.com/carebridge/hms/pkg/types"
)

// PatientView is the patient-scoped capability surface of the appointment
// store. Every operation authorizes against the acting patient's id.
type PatientView interface {
	ListMine(patientID string) ([]*types.Appointment, error)
	Create(patientID, doctorID string, slotStart time.Time) (*types.Appointment, error)
	Reschedule(patientID string, id int, newSlotStart time.Time) error
	Cancel(patientID string, id int) error
}

// DoctorView is the doctor-scoped capability surface of the appointment store.
type DoctorView interface {
	ListMine(doctorID string) ([]*types.Appointment, error)
	ListUpcoming(doctorID string) ([]*types.Appointment, error)
	Decide(doctorID string, id int, accepted bool) error
	Complete(doctorID string, id int, outcome types.OutcomeRecord) error
}

// PharmacistView is the pharmacist-scoped capability surface of the
// appointment store.
type PharmacistView interface {
	ListOutcomeRecords() ([]types.OutcomeEntry, error)
	Dispense(id int) error
}

// AdministratorView is the read-only administrative surface of the
// appointment store.
type AdministratorView interface {
	ListAll() (map[int]*types.Appointment, error)
}

// AppointmentRepository defines the durable persistence contract of the
// appointment store: full rewrite on save, all-or-nothing load.
type AppointmentRepository interface {
	LoadAll() ([]*types.Appointment, error)
	SaveAll(appts []*types.Appointment) error
}

// UserDirectory is the external master-list lookup capability. The
// scheduling core consumes it to validate actor identity and role.
type UserDirectory interface {
	Lookup(id string) (*types.UserRecord, error)
	ListByRole(role string) []*types.UserRecord
}

// Inventory is the opaque medicine capability consumed during dispensation.
type Inventory interface {
	Validate(medicine string, quantity int) error
	Deduct(medicine string, quantity int) error
}
