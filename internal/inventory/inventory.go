// Package inventory implements the opaque medicine capability consumed by
// the scheduling core during dispensation: validate that a prescribed
// quantity is in stock and deduct it.
package inventory

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/carebridge/hms/pkg/interfaces"
	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/types"
)

type medicine struct {
	name       string
	stock      int
	alertLevel int
}

// Inventory is an in-memory stock ledger seeded from the medicine master
// list. Dispensations deduct stock; dropping below a medicine's alert level
// raises a low-stock warning in the log.
type Inventory struct {
	mu        sync.Mutex
	logger    *logger.Logger
	medicines map[string]*medicine
}

// Load reads the medicine master list: name,stock,low-stock alert level.
func Load(path string, log *logger.Logger) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open medicine list: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read medicine list: %w", err)
	}

	inv := &Inventory{
		logger:    log,
		medicines: make(map[string]*medicine),
	}
	for i, record := range records {
		if i == 0 && strings.Contains(strings.ToLower(record[0]), "name") {
			continue
		}
		stock, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("medicine row %d has invalid stock %q", i+1, record[1])
		}
		alert, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("medicine row %d has invalid alert level %q", i+1, record[2])
		}

		name := strings.TrimSpace(record[0])
		inv.medicines[normalize(name)] = &medicine{name: name, stock: stock, alertLevel: alert}
	}

	log.Infof("Medicine inventory loaded with %d medicines", len(inv.medicines))
	return inv, nil
}

// NewWithStock builds an inventory from a stock map, for embedding callers
// and tests.
func NewWithStock(stock map[string]int, log *logger.Logger) *Inventory {
	inv := &Inventory{
		logger:    log,
		medicines: make(map[string]*medicine),
	}
	for name, qty := range stock {
		inv.medicines[normalize(name)] = &medicine{name: name, stock: qty}
	}
	return inv
}

// Validate checks that the medicine exists and the quantity is in stock.
func (inv *Inventory) Validate(name string, quantity int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	med, ok := inv.medicines[normalize(name)]
	if !ok {
		return types.NewNotFoundError(fmt.Sprintf("medicine %s is not stocked", name))
	}
	if quantity <= 0 {
		return types.NewValidationError(fmt.Sprintf("invalid quantity %d for medicine %s", quantity, name), nil)
	}
	if med.stock < quantity {
		return types.NewValidationError(
			fmt.Sprintf("insufficient stock of %s: have %d, need %d", name, med.stock, quantity), nil)
	}
	return nil
}

// Deduct removes the given quantity from stock.
func (inv *Inventory) Deduct(name string, quantity int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	med, ok := inv.medicines[normalize(name)]
	if !ok {
		return types.NewNotFoundError(fmt.Sprintf("medicine %s is not stocked", name))
	}
	if med.stock < quantity {
		return types.NewValidationError(
			fmt.Sprintf("insufficient stock of %s: have %d, need %d", name, med.stock, quantity), nil)
	}

	med.stock -= quantity
	if med.stock < med.alertLevel {
		inv.logger.Warnf("Medicine %s is below its alert level: %d remaining (alert at %d)",
			med.name, med.stock, med.alertLevel)
	}
	return nil
}

// Stock reports the current stock of a medicine.
func (inv *Inventory) Stock(name string) (int, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	med, ok := inv.medicines[normalize(name)]
	if !ok {
		return 0, false
	}
	return med.stock, true
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ interfaces.Inventory = (*Inventory)(nil)
