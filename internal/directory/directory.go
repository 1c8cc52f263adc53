// Package directory implements the external user-directory capability
// consumed by the scheduling core: lookup-by-id over the hospital's staff
// and patient master lists.
package directory

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/carebridge/hms/pkg/interfaces"
	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/rbac"
	"github.com/carebridge/hms/pkg/types"
)

// Directory holds the user master lists in memory. The lists are read once
// at startup; the scheduling core never mutates them.
type Directory struct {
	logger *logger.Logger
	users  map[string]*types.UserRecord
}

// Load reads the staff and patient master lists. Staff rows carry their role
// in the third column; patient rows are implicitly patients.
func Load(staffFile, patientFile string, log *logger.Logger) (*Directory, error) {
	d := &Directory{
		logger: log,
		users:  make(map[string]*types.UserRecord),
	}

	if err := d.loadFile(staffFile, ""); err != nil {
		return nil, fmt.Errorf("failed to load staff list: %w", err)
	}
	if err := d.loadFile(patientFile, rbac.RolePatient); err != nil {
		return nil, fmt.Errorf("failed to load patient list: %w", err)
	}

	log.Infof("User directory loaded with %d users", len(d.users))
	return d, nil
}

// loadFile reads one master list. When forcedRole is empty the role comes
// from the row itself.
func (d *Directory) loadFile(path, forcedRole string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return err
	}

	for i, record := range records {
		// Master lists exported from the admin tooling carry a header row.
		if i == 0 && strings.Contains(strings.ToLower(record[0]), "id") {
			continue
		}
		if len(record) < 2 {
			return fmt.Errorf("row %d has fewer than 2 columns", i+1)
		}

		user := &types.UserRecord{
			ID:   strings.TrimSpace(record[0]),
			Name: strings.TrimSpace(record[1]),
			Role: forcedRole,
		}
		if forcedRole == "" {
			if len(record) < 3 {
				return fmt.Errorf("staff row %d is missing a role column", i+1)
			}
			user.Role = strings.ToLower(strings.TrimSpace(record[2]))
		}
		if !rbac.ValidRole(user.Role) {
			return fmt.Errorf("row %d has unknown role %q", i+1, user.Role)
		}

		d.users[user.ID] = user
	}

	return nil
}

// Lookup returns the user record for an id.
func (d *Directory) Lookup(id string) (*types.UserRecord, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("user %s is not in the directory", id))
	}
	return user, nil
}

// ListByRole returns every user holding the given role, ordered by id.
func (d *Directory) ListByRole(role string) []*types.UserRecord {
	var result []*types.UserRecord
	for _, user := range d.users {
		if user.Role == role {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

var _ interfaces.UserDirectory = (*Directory)(nil)
