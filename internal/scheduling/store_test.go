package scheduling

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/hms/internal/inventory"
	"github.com/carebridge/hms/pkg/interfaces"
	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/rbac"
	"github.com/carebridge/hms/pkg/types"
)

// stubDirectory is a fixed in-memory user directory.
type stubDirectory struct {
	users map[string]*types.UserRecord
}

func (d stubDirectory) Lookup(id string) (*types.UserRecord, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, types.NewNotFoundError("unknown user " + id)
	}
	return user, nil
}

func (d stubDirectory) ListByRole(role string) []*types.UserRecord {
	var result []*types.UserRecord
	for _, user := range d.users {
		if user.Role == role {
			result = append(result, user)
		}
	}
	return result
}

// MockAppointmentRepository is a mock implementation of AppointmentRepository
type MockAppointmentRepository struct {
	mock.Mock
}

func (m *MockAppointmentRepository) LoadAll() ([]*types.Appointment, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Appointment), args.Error(1)
}

func (m *MockAppointmentRepository) SaveAll(appts []*types.Appointment) error {
	args := m.Called(appts)
	return args.Error(0)
}

func testDirectory() stubDirectory {
	return stubDirectory{users: map[string]*types.UserRecord{
		"P1":    {ID: "P1", Name: "Alice Tan", Role: rbac.RolePatient},
		"P2":    {ID: "P2", Name: "Bob Lim", Role: rbac.RolePatient},
		"D001":  {ID: "D001", Name: "Dr Carol Ng", Role: rbac.RoleDoctor},
		"PH1":   {ID: "PH1", Name: "Pharmacist Dan", Role: rbac.RolePharmacist},
		"ADMIN": {ID: "ADMIN", Name: "Eve Ho", Role: rbac.RoleAdministrator},
	}}
}

func testCalendars(t *testing.T) map[string]*SlotCalendar {
	t.Helper()
	cal, err := NewSlotCalendar("D001", date(2024, 3, 1), date(2024, 3, 31), logger.New("error"))
	require.NoError(t, err)
	return map[string]*SlotCalendar{"D001": cal}
}

func setupTestStore(t *testing.T) (*Store, *inventory.Inventory, string) {
	t.Helper()

	log := logger.New("error")
	path := filepath.Join(t.TempDir(), "appointments.csv")
	repo := NewFileRepository(path, log)
	inv := inventory.NewWithStock(map[string]int{"Paracetamol": 10, "Ibuprofen": 4}, log)

	store, err := NewStore(repo, testDirectory(), inv, testCalendars(t), log, nil)
	require.NoError(t, err)
	return store, inv, path
}

func slotTime(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, time.Local)
}

func TestStore_BookAcceptComplete(t *testing.T) {
	store, _, _ := setupTestStore(t)

	// Patient books: Pending, id 0, slot still available.
	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, apt.ID)
	assert.Equal(t, types.StatusPending, apt.Status)
	assert.True(t, apt.Slot.Available, "creation must not claim the slot")

	// Doctor accepts: Confirmed, slot claimed.
	require.NoError(t, store.DoctorView().Decide("D001", 0, true))

	upcoming, err := store.DoctorView().ListUpcoming("D001")
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, types.StatusConfirmed, upcoming[0].Status)
	assert.False(t, upcoming[0].Slot.Available)

	// Doctor completes with an outcome.
	require.NoError(t, store.DoctorView().Complete("D001", 0, types.OutcomeRecord{
		ServiceType:       types.ServiceConsultation,
		ConsultationNotes: "patient recovering well",
		Prescription:      []types.PrescriptionItem{{Medicine: "Paracetamol", Quantity: 2}},
	}))

	mine, err := store.PatientView().ListMine("P1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, types.StatusCompleted, mine[0].Status)
	require.NotNil(t, mine[0].Outcome)
	assert.Equal(t, types.DispensationPending, mine[0].Outcome.Dispensation)
}

func TestStore_CancelPendingReleasesSlot(t *testing.T) {
	store, _, _ := setupTestStore(t)

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)

	require.NoError(t, store.PatientView().Cancel("P1", apt.ID))

	mine, err := store.PatientView().ListMine("P1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCanceled, mine[0].Status)
	assert.True(t, mine[0].Slot.Available)

	// The slot is bookable again.
	_, err = store.PatientView().Create("P2", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)

	// Completing a canceled appointment is invalid.
	err = store.DoctorView().Complete("D001", apt.ID, types.OutcomeRecord{ServiceType: types.ServiceConsultation})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeInvalidState))
}

func TestStore_CancelConfirmedReleasesClaim(t *testing.T) {
	store, _, _ := setupTestStore(t)

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	require.NoError(t, store.DoctorView().Decide("D001", apt.ID, true))

	slots, err := store.SlotsOn("D001", date(2024, 3, 4))
	require.NoError(t, err)
	assert.False(t, slots[2].Available, "09:00 claimed after acceptance")

	require.NoError(t, store.PatientView().Cancel("P1", apt.ID))

	slots, err = store.SlotsOn("D001", date(2024, 3, 4))
	require.NoError(t, err)
	assert.True(t, slots[2].Available, "09:00 released after cancellation")
}

func TestStore_DeclineLeavesSlotAvailable(t *testing.T) {
	store, _, _ := setupTestStore(t)

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	require.NoError(t, store.DoctorView().Decide("D001", apt.ID, false))

	mine, err := store.PatientView().ListMine("P1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDeclined, mine[0].Status)
	assert.True(t, mine[0].Slot.Available)

	// Declined appointments are terminal.
	err = store.DoctorView().Decide("D001", apt.ID, true)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeInvalidState))
}

func TestStore_DispenseOnceOnly(t *testing.T) {
	store, inv, _ := setupTestStore(t)

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	require.NoError(t, store.DoctorView().Decide("D001", apt.ID, true))
	require.NoError(t, store.DoctorView().Complete("D001", apt.ID, types.OutcomeRecord{
		ServiceType:  types.ServiceConsultation,
		Prescription: []types.PrescriptionItem{{Medicine: "Paracetamol", Quantity: 2}},
	}))

	entries, err := store.PharmacistView().ListOutcomeRecords()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.DispensationPending, entries[0].Outcome.Dispensation)

	require.NoError(t, store.PharmacistView().Dispense(apt.ID))

	stock, ok := inv.Stock("Paracetamol")
	require.True(t, ok)
	assert.Equal(t, 8, stock)

	err = store.PharmacistView().Dispense(apt.ID)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeAlreadyDispensed))

	// Dispensed records still appear in the listing.
	entries, err = store.PharmacistView().ListOutcomeRecords()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.DispensationDispensed, entries[0].Outcome.Dispensation)
}

func TestStore_DispenseErrors(t *testing.T) {
	store, inv, _ := setupTestStore(t)

	// Unknown appointment.
	err := store.PharmacistView().Dispense(42)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))

	// Appointment without an outcome record.
	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	err = store.PharmacistView().Dispense(apt.ID)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))

	// Insufficient stock leaves the record pending and the stock untouched.
	require.NoError(t, store.DoctorView().Decide("D001", apt.ID, true))
	require.NoError(t, store.DoctorView().Complete("D001", apt.ID, types.OutcomeRecord{
		ServiceType:  types.ServiceConsultation,
		Prescription: []types.PrescriptionItem{{Medicine: "Ibuprofen", Quantity: 5}},
	}))
	err = store.PharmacistView().Dispense(apt.ID)
	require.Error(t, err)

	stock, _ := inv.Stock("Ibuprofen")
	assert.Equal(t, 4, stock)
	entries, err := store.PharmacistView().ListOutcomeRecords()
	require.NoError(t, err)
	assert.Equal(t, types.DispensationPending, entries[0].Outcome.Dispensation)
}

func TestStore_ForbiddenForForeignPatient(t *testing.T) {
	store, _, _ := setupTestStore(t)

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)

	err = store.PatientView().Reschedule("P2", apt.ID, slotTime(4, 10, 0))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeForbidden))

	err = store.PatientView().Cancel("P2", apt.ID)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeForbidden))

	err = store.DoctorView().Decide("D999", apt.ID, true)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeForbidden))
}

func TestStore_NotFoundForUnknownID(t *testing.T) {
	store, _, _ := setupTestStore(t)

	err := store.PatientView().Cancel("P1", 7)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))

	err = store.PatientView().Reschedule("P1", 7, slotTime(4, 10, 0))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))
}

func TestStore_CreateValidatesActors(t *testing.T) {
	store, _, _ := setupTestStore(t)

	_, err := store.PatientView().Create("P9", "D001", slotTime(4, 9, 0))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))

	_, err = store.PatientView().Create("P1", "D999", slotTime(4, 9, 0))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))

	// Sunday has no slots.
	_, err = store.PatientView().Create("P1", "D001", slotTime(3, 9, 0))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))
}

func TestStore_SlotExclusivity(t *testing.T) {
	store, _, _ := setupTestStore(t)

	_, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)

	// A second booking against the same slot is rejected while the first
	// appointment is active, even before the doctor accepts.
	_, err = store.PatientView().Create("P2", "D001", slotTime(4, 9, 0))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeSlotUnavailable))
}

func TestStore_RescheduleMovesClaim(t *testing.T) {
	store, _, _ := setupTestStore(t)

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	require.NoError(t, store.DoctorView().Decide("D001", apt.ID, true))

	require.NoError(t, store.PatientView().Reschedule("P1", apt.ID, slotTime(5, 10, 0)))

	slots, err := store.SlotsOn("D001", date(2024, 3, 4))
	require.NoError(t, err)
	assert.True(t, slots[2].Available, "old slot released")

	slots, err = store.SlotsOn("D001", date(2024, 3, 5))
	require.NoError(t, err)
	assert.False(t, slots[4].Available, "new slot carries the claim")

	mine, err := store.PatientView().ListMine("P1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, mine[0].Status, "status unchanged by reschedule")
	assert.Equal(t, "10:00", mine[0].Slot.TimeKey())
}

func TestStore_RescheduleToHeldSlotKeepsOldSlot(t *testing.T) {
	store, _, _ := setupTestStore(t)

	first, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	_, err = store.PatientView().Create("P2", "D001", slotTime(4, 10, 0))
	require.NoError(t, err)
	require.NoError(t, store.DoctorView().Decide("D001", first.ID, true))

	// The target slot is held, so the reschedule fails before the old slot
	// is released.
	err = store.PatientView().Reschedule("P1", first.ID, slotTime(4, 10, 0))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeSlotUnavailable))

	slots, err := store.SlotsOn("D001", date(2024, 3, 4))
	require.NoError(t, err)
	assert.False(t, slots[2].Available, "old slot still claimed")
}

func TestStore_AdministratorListAll(t *testing.T) {
	store, _, _ := setupTestStore(t)

	_, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	_, err = store.PatientView().Create("P2", "D001", slotTime(4, 10, 0))
	require.NoError(t, err)

	all, err := store.AdministratorView().ListAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Contains(t, all, 0)
	assert.Contains(t, all, 1)
}

func TestStore_IDsNeverReused(t *testing.T) {
	store, _, _ := setupTestStore(t)

	first, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	require.NoError(t, store.PatientView().Cancel("P1", first.ID))

	second, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)
}

func TestStore_CompleteRejectsUnstorableOutcome(t *testing.T) {
	store, _, path := setupTestStore(t)
	log := logger.New("error")

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	require.NoError(t, store.DoctorView().Decide("D001", apt.ID, true))

	// Medicine names carrying the persistence separators are rejected up
	// front rather than written in a form the loader cannot read back.
	err = store.DoctorView().Complete("D001", apt.ID, types.OutcomeRecord{
		ServiceType:  types.ServiceConsultation,
		Prescription: []types.PrescriptionItem{{Medicine: "Co:Amoxiclav", Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeInvalidInput))

	mine, err := store.PatientView().ListMine("P1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, mine[0].Status)
	assert.Nil(t, mine[0].Outcome)

	// The durable file stays loadable after the rejection.
	inv := inventory.NewWithStock(nil, log)
	reloaded, err := NewStore(NewFileRepository(path, log), testDirectory(), inv, testCalendars(t), log, nil)
	require.NoError(t, err)

	all, err := reloaded.AdministratorView().ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, types.StatusConfirmed, all[apt.ID].Status)
}

func TestStore_RoundTripThroughFile(t *testing.T) {
	store, _, path := setupTestStore(t)
	log := logger.New("error")

	apt, err := store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.NoError(t, err)
	require.NoError(t, store.DoctorView().Decide("D001", apt.ID, true))
	require.NoError(t, store.DoctorView().Complete("D001", apt.ID, types.OutcomeRecord{
		ServiceType:       types.ServiceConsultation,
		ConsultationNotes: "notes, with a comma",
		Prescription:      []types.PrescriptionItem{{Medicine: "Paracetamol", Quantity: 2}},
	}))
	_, err = store.PatientView().Create("P2", "D001", slotTime(4, 10, 0))
	require.NoError(t, err)

	before, err := store.AdministratorView().ListAll()
	require.NoError(t, err)

	inv := inventory.NewWithStock(map[string]int{"Paracetamol": 10}, log)
	reloaded, err := NewStore(NewFileRepository(path, log), testDirectory(), inv, testCalendars(t), log, nil)
	require.NoError(t, err)

	after, err := reloaded.AdministratorView().ListAll()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The id counter continues past the reloaded maximum.
	next, err := reloaded.PatientView().Create("P2", "D001", slotTime(5, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, next.ID)

	// Confirmed claims are rebound into the calendar on load.
	slots, err := reloaded.SlotsOn("D001", date(2024, 3, 4))
	require.NoError(t, err)
	assert.False(t, slots[2].Available, "09:00 still claimed after reload")
}

func TestStore_PersistFailureRollsBack(t *testing.T) {
	log := logger.New("error")
	inv := inventory.NewWithStock(nil, log)

	repo := &MockAppointmentRepository{}
	repo.On("LoadAll").Return(nil, types.NewNotFoundError("missing"))
	repo.On("SaveAll", mock.Anything).Return(nil).Once()
	repo.On("SaveAll", mock.Anything).Return(errors.New("disk full"))

	store, err := NewStore(repo, testDirectory(), inv, testCalendars(t), log, nil)
	require.NoError(t, err)

	_, err = store.PatientView().Create("P1", "D001", slotTime(4, 9, 0))
	require.Error(t, err)

	// The failed booking left no trace: the store is empty and the next
	// successful id would still be 0.
	all, err := store.AdministratorView().ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	slots, err := store.SlotsOn("D001", date(2024, 3, 4))
	require.NoError(t, err)
	assert.True(t, slots[2].Available)
	repo.AssertExpectations(t)
}

func TestStore_CorruptFileFailsConstruction(t *testing.T) {
	log := logger.New("error")
	path := filepath.Join(t.TempDir(), "appointments.csv")
	require.NoError(t, os.WriteFile(path, []byte("not-an-id,P1,D001,2024-03-04,09:00,true,pending,,,,\n"), 0o644))

	inv := inventory.NewWithStock(nil, log)
	_, err := NewStore(NewFileRepository(path, log), testDirectory(), inv, testCalendars(t), log, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeCorruptStore))
}

var _ interfaces.UserDirectory = stubDirectory{}
