package auth

const (
	PermEditCode           = "edit_code"
	PermManageUsers        = "manage_users"
	PermManageApplications = "manage_applications"
	PermViewAllData        = "view_all_data"
	PermDeleteApplications = "delete_applications"
	PermManagePermissions  = "manage_permissions"
	PermAccessAdminPanel   = "access_admin_panel"
)

var rolePermissions = map[Role][]string{
	RoleOwner: {
		PermEditCode,
		PermManageUsers,
		PermManageApplications,
		PermViewAllData,
		PermDeleteApplications,
		PermManagePermissions,
		PermAccessAdminPanel,
	},
	RoleAdmin: {
		PermManageUsers,
		PermManageApplications,
		PermViewAllData,
		PermAccessAdminPanel,
	},
	RoleUser: {
		PermManageApplications,
	},
}

// PermissionsFor returns the permission keys granted to role.
func PermissionsFor(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
