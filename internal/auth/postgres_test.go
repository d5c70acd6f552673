package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func userRows() *sqlmock.Rows {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "email", "username", "password_hash", "first_name", "last_name", "phone_number",
		"status", "enabled", "account_non_locked", "credentials_non_expired", "failed_login_attempts",
		"locked_at", "last_login_at", "password_changed_at", "department_id",
		"medical_license_number", "specialty", "insurance_policy_number", "created_at", "updated_at",
	}).AddRow(
		"01HZXW5E8NQ2K4J6M8P0R2T4V6", "doc@example.com", "drhouse", "$argon2id$x", "Gregory", "House", nil,
		"ACTIVE", true, true, true, 0,
		nil, nil, nil, nil,
		"ML-12345", "Diagnostics", nil, now, now,
	)
}

func TestPGUserFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`from users where email=\$1`).
		WithArgs("doc@example.com").
		WillReturnRows(userRows())

	u, err := store.Users(context.Background()).FindByEmail(context.Background(), "doc@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "01HZXW5E8NQ2K4J6M8P0R2T4V6" || u.Status != StatusActive {
		t.Errorf("user = %+v", u)
	}
	if u.Username != "drhouse" || u.PhoneNumber != "" {
		t.Errorf("nullable scan wrong: username=%q phone=%q", u.Username, u.PhoneNumber)
	}
	if u.LockedAt != nil || u.LastLoginAt != nil {
		t.Error("nil timestamps expected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGUserFindByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`from users where email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Users(context.Background()).FindByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGUserCreateUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := store.Users(context.Background()).Create(context.Background(), &User{
		Email: "doc@example.com", PasswordHash: "h", FirstName: "G", LastName: "H", Status: StatusActive,
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGUserCreateAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`insert into users`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &User{Email: "doc@example.com", PasswordHash: "h", FirstName: "G", LastName: "H", Status: StatusActive}
	if err := store.Users(context.Background()).Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Error("Create must assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGUserCreateStampsTimestamps(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`insert into users`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &User{Email: "doc@example.com", PasswordHash: "h", FirstName: "G", LastName: "H", Status: StatusActive}
	if err := store.Users(context.Background()).Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// The struct handed back feeds the signup response; a zero createdAt
	// would serialize as year one.
	if u.CreatedAt.IsZero() {
		t.Error("Create must stamp CreatedAt")
	}
	if u.UpdatedAt.IsZero() {
		t.Error("Create must stamp UpdatedAt")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGUserUpdateMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update users set`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(context.Background()).Update(context.Background(), &User{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGAssignPrimaryDemotesExisting(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`update user_roles set is_primary=false`).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into user_roles`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UserRoles(context.Background()).Assign(context.Background(), &UserRole{
		UserID: "user-1", RoleID: "role-1", IsActive: true, IsPrimary: true,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGAssignNonPrimarySkipsDemotion(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into user_roles`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UserRoles(context.Background()).Assign(context.Background(), &UserRole{
		UserID: "user-1", RoleID: "role-2", IsActive: true,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGAssignRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`update user_roles set is_primary=false`).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into user_roles`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.UserRoles(context.Background()).Assign(context.Background(), &UserRole{
		UserID: "user-1", RoleID: "role-1", IsActive: true, IsPrimary: true,
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGInTxSharesOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into users`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update user_roles set is_primary=false`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`insert into user_roles`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx Store) error {
		u := &User{Email: "doc@example.com", PasswordHash: "h", FirstName: "G", LastName: "H", Status: StatusActive}
		if err := tx.Users(context.Background()).Create(context.Background(), u); err != nil {
			return err
		}
		// Assign must join the open transaction, not begin a nested one.
		return tx.UserRoles(context.Background()).Assign(context.Background(), &UserRole{
			UserID: u.ID, RoleID: "role-1", IsActive: true, IsPrimary: true,
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGInTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into users`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into user_roles`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx Store) error {
		u := &User{Email: "doc@example.com", PasswordHash: "h", FirstName: "G", LastName: "H", Status: StatusActive}
		if err := tx.Users(context.Background()).Create(context.Background(), u); err != nil {
			return err
		}
		return tx.UserRoles(context.Background()).Assign(context.Background(), &UserRole{
			UserID: u.ID, RoleID: "role-1", IsActive: true,
		})
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGActiveForUserDenormalizesRoles(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "role_id", "code", "name",
		"is_active", "is_primary", "assigned_at", "updated_at", "assigned_by", "notes",
	}).
		AddRow("ur-1", "user-1", "role-1", "DOCTOR", "Doctor", true, true, now, now, nil, nil).
		AddRow("ur-2", "user-1", "role-2", "ADMIN", "Administrator", true, false, now.Add(time.Hour), now, "admin-1", nil)

	mock.ExpectQuery(`from user_roles ur join roles r`).
		WithArgs("user-1").
		WillReturnRows(rows)

	assignments, err := store.UserRoles(context.Background()).ActiveForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("got %d assignments", len(assignments))
	}
	if assignments[0].RoleCode != "DOCTOR" || assignments[1].RoleCode != "ADMIN" {
		t.Errorf("codes = %q, %q", assignments[0].RoleCode, assignments[1].RoleCode)
	}
	if !assignments[0].IsPrimary || assignments[1].IsPrimary {
		t.Error("primary flag scanned wrong")
	}
	if assignments[1].AssignedBy != "admin-1" {
		t.Errorf("assignedBy = %q", assignments[1].AssignedBy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGRoleFindByCode(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "name", "code", "description", "role_type", "access_level",
		"is_active", "is_system_defined", "created_at", "updated_at",
	}).AddRow("role-1", "Doctor", "DOCTOR", nil, "DOCTOR", 2, true, true, now, now)

	mock.ExpectQuery(`select .+ from roles where code=\$1`).
		WithArgs("DOCTOR").
		WillReturnRows(rows)

	role, err := store.Roles(context.Background()).FindByCode(context.Background(), "DOCTOR")
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if role.RoleType != RoleDoctor || role.AccessLevel != 2 {
		t.Errorf("role = %+v", role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGDepartmentFind(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "code", "name", "type", "head_user_id", "created_at", "updated_at",
	}).AddRow("dept-1", "DIAG", "Diagnostics", "CLINICAL", nil, now, now)

	mock.ExpectQuery(`select .+ from departments where id=\$1`).
		WithArgs("dept-1").
		WillReturnRows(rows)

	d, err := store.Departments(context.Background()).Find(context.Background(), "dept-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if d.Name != "Diagnostics" || d.HeadUserID != "" {
		t.Errorf("department = %+v", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
