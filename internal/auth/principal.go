package auth

// Principal is the request-scoped representation of an authenticated identity
// with its resolved roles and permissions. It is constructed fresh for every
// authenticated request, either from validated token claims or from a freshly
// loaded user, and is never cached across requests.
type Principal struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Username    string         `json:"username,omitempty"`
	FirstName   string         `json:"first_name,omitempty"`
	LastName    string         `json:"last_name,omitempty"`
	Roles       []string       `json:"roles"`
	Permissions []string       `json:"permissions"`
	Department  *DepartmentRef `json:"department,omitempty"`

	Enabled               bool `json:"-"`
	AccountNonLocked      bool `json:"-"`
	CredentialsNonExpired bool `json:"-"`
}

// NewPrincipal resolves a principal from a user, its role assignments and an
// optional department. A user with zero active assignments yields empty role
// and permission lists; such a principal is authenticated but authorized for
// nothing beyond that.
func NewPrincipal(user *User, assignments []UserRole, dept *Department) Principal {
	roles := EffectiveRoleCodes(assignments)
	return Principal{
		ID:                    user.ID,
		Email:                 user.Email,
		Username:              user.Username,
		FirstName:             user.FirstName,
		LastName:              user.LastName,
		Roles:                 roles,
		Permissions:           PermissionsForRoles(roles),
		Department:            dept.Snapshot(),
		Enabled:               user.Enabled,
		AccountNonLocked:      user.AccountNonLocked,
		CredentialsNonExpired: user.CredentialsNonExpired,
	}
}

// FullName joins the name fields for display.
func (p Principal) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// HasRole reports whether the principal holds the exact role code.
func (p Principal) HasRole(code string) bool {
	for _, r := range p.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of the codes.
func (p Principal) HasAnyRole(codes ...string) bool {
	for _, c := range codes {
		if p.HasRole(c) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the principal carries the permission string.
func (p Principal) HasPermission(perm string) bool {
	for _, q := range p.Permissions {
		if q == perm {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether any of the permissions is carried.
func (p Principal) HasAnyPermission(perms ...string) bool {
	for _, q := range perms {
		if p.HasPermission(q) {
			return true
		}
	}
	return false
}

// PrimaryRole returns the first resolved role code, or "" for a user with no
// active roles.
func (p Principal) PrimaryRole() string {
	if len(p.Roles) == 0 {
		return ""
	}
	return p.Roles[0]
}

// AccessLevel returns the highest access level among the principal's roles.
func (p Principal) AccessLevel() int {
	level := 1
	for _, r := range p.Roles {
		if l := RoleType(r).AccessLevel(); l > level {
			level = l
		}
	}
	return level
}
