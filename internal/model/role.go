package model

// Role is the permission level of a clinic user.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleDoctor     Role = "Doctor"
	RoleSuperAdmin Role = "SuperAdmin"
)

// CanTriggerBackup reports whether the role is allowed to request a manual
// database backup. Only Admin and Doctor may; everything else is forbidden.
func (r Role) CanTriggerBackup() bool {
	return r == RoleAdmin || r == RoleDoctor
}
