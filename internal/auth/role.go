package auth

import (
	"strings"
	"time"
)

// RoleType is the closed set of role kinds in the claims platform. The role
// code of a system role is derived 1:1 from its type.
type RoleType string

const (
	RolePatient           RoleType = "PATIENT"
	RoleDoctor            RoleType = "DOCTOR"
	RoleAdmin             RoleType = "ADMIN"
	RoleInsuranceProvider RoleType = "INSURANCE_PROVIDER"
)

// AccessLevel returns the privilege rank of the role type, higher is more
// privileged. Unknown types rank lowest.
func (t RoleType) AccessLevel() int {
	switch t {
	case RoleInsuranceProvider:
		return 4
	case RoleAdmin:
		return 3
	case RoleDoctor:
		return 2
	case RolePatient:
		return 1
	default:
		return 0
	}
}

// Valid reports whether t is one of the closed role types.
func (t RoleType) Valid() bool {
	switch t {
	case RolePatient, RoleDoctor, RoleAdmin, RoleInsuranceProvider:
		return true
	}
	return false
}

// NormalizeRoleCode maps free-form input ("doctor", " Doctor ") onto the
// canonical uppercase role code used in tokens and route requirements.
func NormalizeRoleCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Role is a named grant bundle. System roles mirror a RoleType and cannot be
// edited or deleted.
type Role struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	Description     string    `json:"description,omitempty"`
	RoleType        RoleType  `json:"role_type"`
	AccessLevel     int       `json:"access_level"`
	IsActive        bool      `json:"is_active"`
	IsSystemDefined bool      `json:"is_system_defined"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserRole links a user to a role. The store returns it denormalized with the
// role's code and name so resolution never walks an object graph.
type UserRole struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	RoleCode   string     `json:"role_code"`
	RoleName   string     `json:"role_name"`
	IsActive   bool       `json:"is_active"`
	IsPrimary  bool       `json:"is_primary"`
	AssignedAt time.Time  `json:"assigned_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Department is referenced by users and embedded in tokens only as a
// denormalized snapshot.
type Department struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	HeadUserID string    `json:"head_user_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DepartmentRef is the snapshot of a department carried inside tokens and
// login responses.
type DepartmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
	Type string `json:"type,omitempty"`
}

// Snapshot produces the token-embeddable view of the department.
func (d *Department) Snapshot() *DepartmentRef {
	if d == nil {
		return nil
	}
	return &DepartmentRef{ID: d.ID, Name: d.Name, Code: d.Code, Type: d.Type}
}
