package rbac

// Four-role definitions covering every actor in the scheduling core
const (
	RolePatient       = "patient"
	RoleDoctor        = "doctor"
	RolePharmacist    = "pharmacist"
	RoleAdministrator = "administrator"
)

// Role hierarchy levels (higher number = higher privilege)
var RoleLevels = map[string]int{
	RolePatient:       1,
	RolePharmacist:    2,
	RoleDoctor:        3,
	RoleAdministrator: 4,
}

// Actions on the appointment store
const (
	ActionListOwn      = "list_own"
	ActionBook         = "book"
	ActionReschedule   = "reschedule"
	ActionCancel       = "cancel"
	ActionDecide       = "decide"
	ActionComplete     = "complete"
	ActionListOutcomes = "list_outcomes"
	ActionDispense     = "dispense"
	ActionListAll      = "list_all"
	ActionViewCalendar = "view_calendar"
)

// permissions maps each role to the store actions it may invoke. The views
// in pkg/interfaces are the hard boundary; this table is the HTTP-layer gate
// in front of them.
var permissions = map[string]map[string]bool{
	RolePatient: {
		ActionListOwn:      true,
		ActionBook:         true,
		ActionReschedule:   true,
		ActionCancel:       true,
		ActionViewCalendar: true,
	},
	RoleDoctor: {
		ActionListOwn:      true,
		ActionDecide:       true,
		ActionComplete:     true,
		ActionViewCalendar: true,
	},
	RolePharmacist: {
		ActionListOutcomes: true,
		ActionDispense:     true,
	},
	RoleAdministrator: {
		ActionListAll:      true,
		ActionViewCalendar: true,
	},
}

// ValidRole reports whether role is one of the four defined roles.
func ValidRole(role string) bool {
	_, ok := RoleLevels[role]
	return ok
}

// Allowed reports whether the given role may perform the given action.
func Allowed(role, action string) bool {
	return permissions[role][action]
}
