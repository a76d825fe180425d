package auth

// Principal represents an operator with resolved permissions.
type Principal struct {
	Operator    Operator
	Permissions map[string]struct{}
}

// NewPrincipal resolves the permissions of op's role.
func NewPrincipal(op Operator) Principal {
	perms := rolePermissions[op.Role]
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{Operator: op, Permissions: set}
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// CanAccessApplication reports whether the principal may read and manage an
// application owned by ownerID.
func (p Principal) CanAccessApplication(ownerID string) bool {
	return p.Operator.ID == ownerID || p.HasPermission(PermViewAllData)
}

// CanDeleteApplication reports whether the principal may delete an
// application owned by ownerID.
func (p Principal) CanDeleteApplication(ownerID string) bool {
	return p.Operator.ID == ownerID || p.HasPermission(PermDeleteApplications)
}
