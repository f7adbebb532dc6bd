package domain

// Role is a user's authorization role. Values match what clients send and
// what is stored in the users.role column.
type Role string

// Role constants define the allowed user roles.
const (
	RoleSuperAdmin Role = "superAdmin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleCustomer   Role = "customer"
	RoleSeller     Role = "seller"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleModerator, RoleCustomer, RoleSeller}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if string(r) == role {
			return true
		}
	}
	return false
}

// Rank returns the role's position in the management hierarchy. Roles
// outside the hierarchy, such as seller, rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleSuperAdmin:
		return 4
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleCustomer:
		return 1
	default:
		return 0
	}
}

func (r Role) String() string { return string(r) }
