package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"mediclaim.org/internal/auth"
	"mediclaim.org/internal/ids"
)

// fakeStore is a minimal in-memory auth.Store for transport tests.
type fakeStore struct {
	users       map[string]*auth.User
	roles       map[string]*auth.Role
	assignments []auth.UserRole
	departments map[string]*auth.Department
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		users:       map[string]*auth.User{},
		roles:       map[string]*auth.Role{},
		departments: map[string]*auth.Department{},
	}
	for _, rt := range []auth.RoleType{auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin, auth.RoleInsuranceProvider} {
		code := string(rt)
		s.roles[code] = &auth.Role{
			ID: ids.New(), Code: code, Name: code, RoleType: rt,
			AccessLevel: rt.AccessLevel(), IsActive: true, IsSystemDefined: true,
		}
	}
	return s
}

func (s *fakeStore) Users(context.Context) auth.UserStore             { return (*fakeUsers)(s) }
func (s *fakeStore) Roles(context.Context) auth.RoleStore             { return (*fakeRoles)(s) }
func (s *fakeStore) UserRoles(context.Context) auth.UserRoleStore     { return (*fakeUserRoles)(s) }
func (s *fakeStore) Departments(context.Context) auth.DepartmentStore { return (*fakeDepartments)(s) }

// InTx snapshots users and assignments and restores them when fn fails,
// matching the SQL store's rollback.
func (s *fakeStore) InTx(_ context.Context, fn func(auth.Store) error) error {
	users := make(map[string]*auth.User, len(s.users))
	for id, u := range s.users {
		cp := *u
		users[id] = &cp
	}
	assignments := append([]auth.UserRole(nil), s.assignments...)
	if err := fn(s); err != nil {
		s.users = users
		s.assignments = assignments
		return err
	}
	return nil
}

type fakeUsers fakeStore

func (f *fakeUsers) Create(_ context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) Find(_ context.Context, id string) (*auth.User, error) {
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := f.FindByEmail(ctx, email)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := f.FindByUsername(ctx, username)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeUsers) Update(_ context.Context, u *auth.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) List(_ context.Context) ([]*auth.User, error) {
	out := make([]*auth.User, 0, len(f.users))
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

type fakeRoles fakeStore

func (f *fakeRoles) Create(_ context.Context, r *auth.Role) error {
	f.roles[r.Code] = r
	return nil
}

func (f *fakeRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	for _, r := range f.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeRoles) FindByCode(_ context.Context, code string) (*auth.Role, error) {
	if r, ok := f.roles[code]; ok {
		return r, nil
	}
	return nil, auth.ErrNotFound
}

func (f *fakeRoles) List(_ context.Context) ([]*auth.Role, error) {
	out := make([]*auth.Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, r)
	}
	return out, nil
}

type fakeUserRoles fakeStore

func (f *fakeUserRoles) Assign(_ context.Context, ur *auth.UserRole) error {
	if ur.ID == "" {
		ur.ID = ids.New()
	}
	for _, r := range f.roles {
		if r.ID == ur.RoleID {
			ur.RoleCode = r.Code
			ur.RoleName = r.Name
		}
	}
	ur.AssignedAt = time.Now().UTC()
	f.assignments = append(f.assignments, *ur)
	return nil
}

func (f *fakeUserRoles) ActiveForUser(_ context.Context, userID string) ([]auth.UserRole, error) {
	var out []auth.UserRole
	for _, a := range f.assignments {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeUserRoles) ForUser(_ context.Context, userID string) ([]auth.UserRole, error) {
	var out []auth.UserRole
	for _, a := range f.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeUserRoles) Deactivate(_ context.Context, id string) error {
	for i := range f.assignments {
		if f.assignments[i].ID == id {
			f.assignments[i].IsActive = false
			return nil
		}
	}
	return auth.ErrNotFound
}

type fakeDepartments fakeStore

func (f *fakeDepartments) Find(_ context.Context, id string) (*auth.Department, error) {
	if d, ok := f.departments[id]; ok {
		return d, nil
	}
	return nil, auth.ErrNotFound
}

func (f *fakeDepartments) FindByCode(_ context.Context, code string) (*auth.Department, error) {
	for _, d := range f.departments {
		if d.Code == code {
			return d, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeDepartments) List(_ context.Context) ([]*auth.Department, error) {
	out := make([]*auth.Department, 0, len(f.departments))
	for _, d := range f.departments {
		out = append(out, d)
	}
	return out, nil
}

// newTestAPI builds an API over the fake store with a known signing key.
func newTestAPI(t *testing.T, opts Options) (*API, *fakeStore, http.Handler) {
	t.Helper()
	store := newFakeStore()
	tokens, err := auth.NewTokenService([]byte("httpapi-test-key"), auth.WithIssuer("mediclaim-test"))
	if err != nil {
		t.Fatal(err)
	}
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		t.Fatal(err)
	}
	api := New(svc, store, ReadyProbe{}, "test", opts)
	return api, store, api.Handler()
}

// seedUser registers an accessible user with the given role and password.
func seedUser(t *testing.T, store *fakeStore, email, password, roleCode string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	u := &auth.User{
		Email:                 email,
		PasswordHash:          hash,
		FirstName:             "Test",
		LastName:              "User",
		Status:                auth.StatusActive,
		Enabled:               true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
	}
	if err := store.Users(context.Background()).Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	role := store.roles[roleCode]
	err = store.UserRoles(context.Background()).Assign(context.Background(), &auth.UserRole{
		UserID: u.ID, RoleID: role.ID, IsActive: true, IsPrimary: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// issueToken logs no one in; it mints an access token directly.
func issueToken(t *testing.T, api *API, u *auth.User, roles ...string) string {
	t.Helper()
	token, _, err := api.svc.Tokens().IssueAccessToken(auth.Principal{
		ID:          u.ID,
		Email:       u.Email,
		Roles:       roles,
		Permissions: auth.PermissionsForRoles(roles),
	})
	if err != nil {
		t.Fatal(err)
	}
	return token
}
