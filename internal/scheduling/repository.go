package scheduling

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/carebridge/hms/pkg/interfaces"
	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/types"
)

// recordFieldCount is the fixed column count of a persisted appointment line:
// id,patientId,doctorId,slotDate,slotTime,available,status,
// serviceType,consultationNotes,prescription,dispensationStatus
const recordFieldCount = 11

const (
	prescriptionSeparator = ";"
	quantitySeparator     = ":"
)

// FileRepository persists the appointment collection as a flat CSV file.
// Every save rewrites the whole file through a temp-file rename so readers
// never observe a partial write.
type FileRepository struct {
	path   string
	logger *logger.Logger
}

// NewFileRepository creates a file-backed appointment repository
func NewFileRepository(path string, log *logger.Logger) interfaces.AppointmentRepository {
	return &FileRepository{
		path:   path,
		logger: log,
	}
}

// LoadAll reads every persisted appointment. A missing file yields NotFound
// so the store can initialize empty; any malformed line fails the whole load
// with CorruptStore, since partial acceptance would desynchronize the id
// counter.
func (r *FileRepository) LoadAll() ([]*types.Appointment, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewNotFoundError(fmt.Sprintf("appointment store %s does not exist", r.path))
		}
		return nil, fmt.Errorf("failed to open appointment store: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = recordFieldCount

	records, err := reader.ReadAll()
	if err != nil {
		return nil, types.NewCorruptStoreError("appointment store has a malformed record", err)
	}

	appts := make([]*types.Appointment, 0, len(records))
	for i, record := range records {
		apt, err := decodeRecord(record)
		if err != nil {
			return nil, types.NewCorruptStoreError(fmt.Sprintf("appointment store line %d is invalid", i+1), err)
		}
		appts = append(appts, apt)
	}

	r.logger.Infof("Loaded %d appointments from %s", len(appts), r.path)
	return appts, nil
}

// SaveAll rewrites the durable store in full from the given collection.
func (r *FileRepository) SaveAll(appts []*types.Appointment) error {
	sorted := make([]*types.Appointment, len(appts))
	copy(sorted, appts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	writer := csv.NewWriter(tmp)
	for _, apt := range sorted {
		if err := writer.Write(encodeRecord(apt)); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to write appointment %d: %w", apt.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush appointment store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp store file: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace appointment store: %w", err)
	}

	return nil
}

// encodeRecord flattens an appointment into its fixed-order CSV fields.
// Absent outcome fields are written empty.
func encodeRecord(apt *types.Appointment) []string {
	record := []string{
		strconv.Itoa(apt.ID),
		apt.PatientID,
		apt.DoctorID,
		apt.Slot.DateKey(),
		apt.Slot.TimeKey(),
		strconv.FormatBool(apt.Slot.Available),
		string(apt.Status),
		"", "", "", "",
	}

	if apt.Outcome != nil {
		items := make([]string, len(apt.Outcome.Prescription))
		for i, item := range apt.Outcome.Prescription {
			items[i] = item.String()
		}
		record[7] = string(apt.Outcome.ServiceType)
		record[8] = apt.Outcome.ConsultationNotes
		record[9] = strings.Join(items, prescriptionSeparator)
		record[10] = string(apt.Outcome.Dispensation)
	}

	return record
}

// decodeRecord parses one persisted line back into an appointment.
func decodeRecord(record []string) (*types.Appointment, error) {
	if len(record) != recordFieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d", recordFieldCount, len(record))
	}

	id, err := strconv.Atoi(record[0])
	if err != nil {
		return nil, fmt.Errorf("unparseable appointment id %q: %w", record[0], err)
	}
	if id < 0 {
		return nil, fmt.Errorf("negative appointment id %d", id)
	}

	start, err := time.ParseInLocation(
		types.SlotDateFormat+" "+types.SlotTimeFormat,
		record[3]+" "+record[4], time.Local)
	if err != nil {
		return nil, fmt.Errorf("unparseable slot time %q %q: %w", record[3], record[4], err)
	}

	available, err := strconv.ParseBool(record[5])
	if err != nil {
		return nil, fmt.Errorf("unparseable slot availability %q: %w", record[5], err)
	}

	status := types.AppointmentStatus(record[6])
	switch status {
	case types.StatusPending, types.StatusConfirmed, types.StatusDeclined,
		types.StatusCompleted, types.StatusCanceled:
	default:
		return nil, fmt.Errorf("unknown appointment status %q", record[6])
	}

	apt := &types.Appointment{
		ID:        id,
		PatientID: record[1],
		DoctorID:  record[2],
		Status:    status,
		Slot: &types.AppointmentSlot{
			DoctorID:  record[2],
			Start:     start,
			Available: available,
		},
	}

	if status == types.StatusCompleted {
		serviceType := types.ServiceType(record[7])
		if !serviceType.Valid() {
			return nil, fmt.Errorf("unknown service type %q", record[7])
		}

		prescription, err := decodePrescription(record[9])
		if err != nil {
			return nil, err
		}

		dispensation := types.DispensationStatus(record[10])
		if dispensation != types.DispensationPending && dispensation != types.DispensationDispensed {
			return nil, fmt.Errorf("unknown dispensation status %q", record[10])
		}

		apt.Outcome = &types.OutcomeRecord{
			ServiceType:       serviceType,
			ConsultationNotes: record[8],
			Prescription:      prescription,
			Dispensation:      dispensation,
		}
	}

	return apt, nil
}

// decodePrescription parses a ;-separated list of name:qty pairs.
func decodePrescription(field string) ([]types.PrescriptionItem, error) {
	if field == "" {
		return nil, nil
	}

	parts := strings.Split(field, prescriptionSeparator)
	items := make([]types.PrescriptionItem, 0, len(parts))
	for _, part := range parts {
		name, qtyStr, found := strings.Cut(part, quantitySeparator)
		if !found || name == "" {
			return nil, fmt.Errorf("malformed prescription item %q", part)
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("malformed prescription quantity %q", part)
		}
		items = append(items, types.PrescriptionItem{Medicine: name, Quantity: qty})
	}
	return items, nil
}
