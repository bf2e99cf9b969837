package registry

// User is an operator or publisher account, created on first successful
// OAuth login. See spec §3.
type User struct {
	ID          int64
	Email       string
	Login       string
	DisplayName string
	Active      bool
	Roles       []string
}

// RoleAdmin is the role token that grants administration, per spec §3.
const RoleAdmin = "admin"

// IsAdmin reports whether u carries the admin role.
func (u *User) IsAdmin() bool {
	for _, r := range u.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// RolesCSV joins Roles with commas, the on-disk representation of
// User.roles_csv.
func (u *User) RolesCSV() string { return joinCSV(u.Roles) }

// ParseRolesCSV splits a comma-separated roles_csv value.
func ParseRolesCSV(csv string) []string { return splitCSV(csv) }
