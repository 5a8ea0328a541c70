package session

// Role is the closed enumeration of principal roles.
type Role string

const (
	// RoleMaintainer operates the system-admin area and has no tenant.
	RoleMaintainer Role = "MAINTAINER"
	// RoleTenantAdmin administers a single tenant. The backend emits either
	// "ADMIN" or "TENANT_ADMIN" on the wire; both parse to this role.
	RoleTenantAdmin Role = "TENANT_ADMIN"
	// RoleDeptAdmin administers a department within a tenant.
	RoleDeptAdmin Role = "DEPT_ADMIN"
	// RoleDeptManager manages a department's day-to-day membership.
	RoleDeptManager Role = "DEPT_MANAGER"
	// RoleUser is a regular tenant member.
	RoleUser Role = "USER"
)

const roleAdminAlias = "ADMIN"

// IsValid checks if the role is one of the predefined valid roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleMaintainer, RoleTenantAdmin, RoleDeptAdmin, RoleDeptManager, RoleUser:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role lands on an admin surface after login.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleTenantAdmin, RoleDeptAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level.
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleUser:        0,
		RoleDeptManager: 1,
		RoleDeptAdmin:   2,
		RoleTenantAdmin: 3,
		RoleMaintainer:  4,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order.
func GetAllRoles() []Role {
	return []Role{
		RoleUser,
		RoleDeptManager,
		RoleDeptAdmin,
		RoleTenantAdmin,
		RoleMaintainer,
	}
}

// ParseRole safely parses a wire value into a Role, folding the legacy
// "ADMIN" alias into RoleTenantAdmin.
func ParseRole(roleStr string) (Role, bool) {
	if roleStr == roleAdminAlias {
		return RoleTenantAdmin, true
	}
	role := Role(roleStr)
	return role, role.IsValid()
}

// DefaultPermissions returns the permission set implied by a role when the
// backend does not attach an explicit permission list to the token.
func DefaultPermissions(r Role) []string {
	base := []string{"chat:read", "chat:write", "tools:read", "agents:read"}

	switch r {
	case RoleUser:
		return base
	case RoleDeptManager:
		return append(base, "departments:read", "users:read")
	case RoleDeptAdmin:
		return append(base,
			"departments:read", "departments:manage",
			"users:read", "users:manage",
		)
	case RoleTenantAdmin:
		return append(base,
			"departments:read", "departments:manage",
			"users:read", "users:manage",
			"agents:manage", "tools:manage", "tenant:manage",
		)
	case RoleMaintainer:
		return append(base,
			"departments:read", "departments:manage",
			"users:read", "users:manage",
			"agents:manage", "tools:manage",
			"tenant:manage", "tenants:manage", "system:manage",
		)
	default:
		return nil
	}
}
