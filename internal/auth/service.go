package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service composes the credential verifier, role resolver, account state
// machine and token service into the login/signup/refresh/logout lifecycle.
// It is the only component with write access to lastLoginAt and
// failedLoginAttempts.
type Service struct {
	store  Store
	tokens *TokenService
}

// NewService constructs the authentication orchestrator.
func NewService(store Store, tokens *TokenService) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	return &Service{store: store, tokens: tokens}, nil
}

// Tokens exposes the token service for request-path validation.
func (s *Service) Tokens() *TokenService { return s.tokens }

// LoginInput is the credential payload for Login.
type LoginInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

// SignupInput is the registration payload. Role is required; the
// role-conditional fields are validated against it.
type SignupInput struct {
	Email                 string `json:"email"`
	Username              string `json:"username,omitempty"`
	Password              string `json:"password"`
	FirstName             string `json:"firstName"`
	LastName              string `json:"lastName"`
	PhoneNumber           string `json:"phoneNumber,omitempty"`
	DepartmentID          string `json:"departmentId,omitempty"`
	Role                  string `json:"role"`
	MedicalLicenseNumber  string `json:"medicalLicenseNumber,omitempty"`
	Specialty             string `json:"specialty,omitempty"`
	InsurancePolicyNumber string `json:"insurancePolicyNumber,omitempty"`
}

// UserInfo is the profile payload embedded in auth responses.
type UserInfo struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Username    string         `json:"username,omitempty"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	FullName    string         `json:"fullName"`
	PhoneNumber string         `json:"phoneNumber,omitempty"`
	Status      string         `json:"status"`
	Roles       []string       `json:"roles"`
	Permissions []string       `json:"permissions"`
	Department  *DepartmentRef `json:"department,omitempty"`
	LastLoginAt *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// AuthResult carries a freshly issued token pair and the user profile.
type AuthResult struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	TokenType        string   `json:"tokenType"`
	ExpiresIn        int64    `json:"expiresIn"`
	RefreshExpiresIn int64    `json:"refreshExpiresIn"`
	User             UserInfo `json:"user"`
}

// Login authenticates the credentials and issues a token pair. An unknown
// email and a wrong password fail identically with ErrInvalidCredentials; an
// account-state problem is reported specifically, but only after the caller
// has proven knowledge of the password.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(in.Password, user.PasswordHash) {
		// Concurrent bad attempts may under-count; accepted.
		user.IncrementFailedLoginAttempts()
		_ = s.store.Users(ctx).Update(ctx, user)
		return nil, ErrInvalidCredentials
	}

	if !user.CanAccess() {
		return nil, ErrAccountInaccessible
	}

	user.UpdateLastLogin()
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		return nil, err
	}

	return s.issueFor(ctx, user)
}

// Signup registers a new user with exactly one primary role and issues a
// token pair. Uniqueness races on email or username are caught by the
// store's unique constraints and surface as ErrAlreadyExists.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" {
		return nil, validationErr("email", "email is required")
	}
	if in.Password == "" {
		return nil, validationErr("password", "password is required")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return nil, validationErr("firstName", "first name is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return nil, validationErr("lastName", "last name is required")
	}
	roleCode := NormalizeRoleCode(in.Role)
	if roleCode == "" {
		return nil, validationErr("role", "role is required")
	}
	if err := validateRoleFields(roleCode, in); err != nil {
		return nil, err
	}

	users := s.store.Users(ctx)
	if exists, err := users.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: email is already in use", ErrAlreadyExists)
	}
	username := strings.TrimSpace(in.Username)
	if username != "" {
		if exists, err := users.ExistsByUsername(ctx, username); err != nil {
			return nil, err
		} else if exists {
			return nil, fmt.Errorf("%w: username is already in use", ErrAlreadyExists)
		}
	}

	role, err := s.store.Roles(ctx).FindByCode(ctx, roleCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, validationErr("role", "invalid role: "+in.Role)
		}
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:                 email,
		Username:              username,
		PasswordHash:          hash,
		FirstName:             strings.TrimSpace(in.FirstName),
		LastName:              strings.TrimSpace(in.LastName),
		PhoneNumber:           strings.TrimSpace(in.PhoneNumber),
		Status:                StatusActive,
		Enabled:               true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		MedicalLicenseNumber:  strings.TrimSpace(in.MedicalLicenseNumber),
		Specialty:             strings.TrimSpace(in.Specialty),
		InsurancePolicyNumber: strings.TrimSpace(in.InsurancePolicyNumber),
	}
	if in.DepartmentID != "" {
		if dept, err := s.store.Departments(ctx).Find(ctx, in.DepartmentID); err == nil {
			user.DepartmentID = dept.ID
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	// Create and assignment commit together; a failed assignment must not
	// leave a role-less user row holding the email.
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Users(ctx).Create(ctx, user); err != nil {
			return err
		}
		return tx.UserRoles(ctx).Assign(ctx, &UserRole{
			UserID:    user.ID,
			RoleID:    role.ID,
			IsActive:  true,
			IsPrimary: true,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.issueFor(ctx, user)
}

// validateRoleFields enforces the role-conditional signup requirements.
func validateRoleFields(roleCode string, in SignupInput) error {
	switch RoleType(roleCode) {
	case RoleDoctor:
		if strings.TrimSpace(in.MedicalLicenseNumber) == "" {
			return validationErr("medicalLicenseNumber", "medical license number is required for doctors")
		}
		if strings.TrimSpace(in.Specialty) == "" {
			return validationErr("specialty", "specialty is required for doctors")
		}
	case RolePatient:
		if strings.TrimSpace(in.InsurancePolicyNumber) == "" {
			return validationErr("insurancePolicyNumber", "insurance policy number is required for patients")
		}
	case RoleAdmin, RoleInsuranceProvider:
		// No additional fields.
	default:
		return validationErr("role", "invalid role: "+roleCode)
	}
	return nil
}

// Refresh validates a refresh token and rotates the pair. Roles and
// permissions are re-resolved from the store, so role changes made since the
// original login take effect here, not only at the next full login. An
// account made inaccessible after the token was issued is rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if !s.tokens.ValidateRefreshToken(refreshToken) {
		return nil, ErrInvalidToken
	}
	claims, err := s.tokens.DecodeRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.CanAccess() {
		return nil, ErrAccountInaccessible
	}

	user.UpdateLastLogin()
	if err := s.store.Users(ctx).Update(ctx, user); err != nil {
		return nil, err
	}

	return s.issueFor(ctx, user)
}

// Logout validates the refresh token on a best-effort basis and reports the
// account it belonged to for audit logging. Stateless tokens remain valid
// until natural expiry; there is no server-side revocation store (known gap).
func (s *Service) Logout(ctx context.Context, refreshToken string) (string, bool) {
	if !s.tokens.ValidateRefreshToken(refreshToken) {
		return "", false
	}
	claims, err := s.tokens.DecodeRefresh(refreshToken)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// CurrentUser resolves the principal attached to the request context and
// returns the fresh profile from the store.
func (s *Service) CurrentUser(ctx context.Context) (*UserInfo, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).Find(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	resolved, _, err := s.resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	info := s.userInfo(user, resolved)
	return &info, nil
}

// resolve builds a principal from the user's current role assignments and
// department.
func (s *Service) resolve(ctx context.Context, user *User) (Principal, []UserRole, error) {
	assignments, err := s.store.UserRoles(ctx).ActiveForUser(ctx, user.ID)
	if err != nil {
		return Principal{}, nil, err
	}
	var dept *Department
	if user.DepartmentID != "" {
		d, err := s.store.Departments(ctx).Find(ctx, user.DepartmentID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Principal{}, nil, err
		}
		dept = d
	}
	return NewPrincipal(user, assignments, dept), assignments, nil
}

func (s *Service) issueFor(ctx context.Context, user *User) (*AuthResult, error) {
	principal, _, err := s.resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	accessToken, _, err := s.tokens.IssueAccessToken(principal)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.tokens.IssueRefreshToken(principal)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        s.tokens.AccessTTL().Milliseconds(),
		RefreshExpiresIn: s.tokens.RefreshTTL().Milliseconds(),
		User:             s.userInfo(user, principal),
	}, nil
}

func (s *Service) userInfo(user *User, principal Principal) UserInfo {
	return UserInfo{
		ID:          user.ID,
		Email:       user.Email,
		Username:    user.Username,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		FullName:    user.FullName(),
		PhoneNumber: user.PhoneNumber,
		Status:      string(user.Status),
		Roles:       principal.Roles,
		Permissions: principal.Permissions,
		Department:  principal.Department,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}
