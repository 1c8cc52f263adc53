package types

// UserRecord is the identity view of a hospital user as exposed by the
// external user directory. The scheduling core never stores these; it looks
// them up by id when validating actors.
type UserRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
