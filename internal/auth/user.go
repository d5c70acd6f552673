package auth

import "time"

// UserStatus is the lifecycle state of an account. Locking is tracked by a
// separate flag and is orthogonal to the status.
type UserStatus string

const (
	StatusActive    UserStatus = "ACTIVE"
	StatusInactive  UserStatus = "INACTIVE"
	StatusLocked    UserStatus = "LOCKED"
	StatusPending   UserStatus = "PENDING"
	StatusSuspended UserStatus = "SUSPENDED"
	StatusDeleted   UserStatus = "DELETED"
)

// CanAccess reports whether the status alone permits authentication.
func (s UserStatus) CanAccess() bool {
	return s == StatusActive
}

// User is the identity record. Accounts are never hard-deleted; "delete" is a
// transition to StatusDeleted that keeps the unique email/username allocated.
type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Username              string     `json:"username,omitempty"`
	PasswordHash          string     `json:"-"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	PhoneNumber           string     `json:"phone_number,omitempty"`
	Status                UserStatus `json:"status"`
	Enabled               bool       `json:"enabled"`
	AccountNonLocked      bool       `json:"account_non_locked"`
	CredentialsNonExpired bool       `json:"credentials_non_expired"`
	FailedLoginAttempts   int        `json:"failed_login_attempts"`
	LockedAt              *time.Time `json:"locked_at,omitempty"`
	LastLoginAt           *time.Time `json:"last_login_at,omitempty"`
	PasswordChangedAt     *time.Time `json:"password_changed_at,omitempty"`
	DepartmentID          string     `json:"department_id,omitempty"`

	// Role-conditional profile fields collected at signup.
	MedicalLicenseNumber  string `json:"medical_license_number,omitempty"`
	Specialty             string `json:"specialty,omitempty"`
	InsurancePolicyNumber string `json:"insurance_policy_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins the name fields for display.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// CanAccess reports whether the account may authenticate: the status must
// permit access and all three account flags must hold.
func (u *User) CanAccess() bool {
	return u.Status.CanAccess() && u.Enabled && u.AccountNonLocked && u.CredentialsNonExpired
}

// IsActive is the stricter "fully normal" check used by admin tooling.
func (u *User) IsActive() bool {
	return u.Status == StatusActive && u.Enabled && u.AccountNonLocked
}

// Activate restores the account to a clean, usable state. Idempotent.
func (u *User) Activate() {
	u.Status = StatusActive
	u.Enabled = true
	u.AccountNonLocked = true
	u.CredentialsNonExpired = true
	u.FailedLoginAttempts = 0
	u.LockedAt = nil
}

// Deactivate disables the account without touching the locking flags.
func (u *User) Deactivate() {
	u.Status = StatusInactive
	u.Enabled = false
}

// Lock marks the account locked. The status is left untouched; locking is
// orthogonal to the lifecycle state. Idempotent.
func (u *User) Lock() {
	if !u.AccountNonLocked {
		return
	}
	u.AccountNonLocked = false
	now := time.Now().UTC()
	u.LockedAt = &now
}

// Unlock clears the lock and the failed-attempt counter.
func (u *User) Unlock() {
	u.AccountNonLocked = true
	u.LockedAt = nil
	u.FailedLoginAttempts = 0
}

// IncrementFailedLoginAttempts bumps the counter. No lock threshold is
// applied here; locking stays an explicit administrative action.
func (u *User) IncrementFailedLoginAttempts() {
	u.FailedLoginAttempts++
}

// ResetFailedLoginAttempts clears the counter.
func (u *User) ResetFailedLoginAttempts() {
	u.FailedLoginAttempts = 0
}

// UpdateLastLogin records a successful authentication.
func (u *User) UpdateLastLogin() {
	now := time.Now().UTC()
	u.LastLoginAt = &now
	u.FailedLoginAttempts = 0
}

// UpdatePasswordChanged records a credential rotation.
func (u *User) UpdatePasswordChanged() {
	now := time.Now().UTC()
	u.PasswordChangedAt = &now
	u.FailedLoginAttempts = 0
}

// MarkDeleted soft-deletes the account. The record and its unique email and
// username remain allocated; re-registration requires a separate purge.
func (u *User) MarkDeleted() {
	u.Status = StatusDeleted
	u.Enabled = false
}
