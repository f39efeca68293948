// Package domain defines shared domain constants and types.
package domain

const (
	// RoleAdmin approves registrations and drives user deletion.
	RoleAdmin = "admin"
	// RoleUser is a standard registered user with the full document set.
	RoleUser = "user"
	// RoleRestricted is the reduced tier with access to a smaller document set.
	RoleRestricted = "restricted-user"
)

// AssignableRoles lists the roles an admin may assign during approval, in
// keyboard order.
var AssignableRoles = []string{RoleRestricted, RoleUser, RoleAdmin}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleUser, RoleRestricted:
		return true
	default:
		return false
	}
}
