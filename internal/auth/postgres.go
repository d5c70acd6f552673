package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"mediclaim.org/internal/ids"
)

var (
	_ Store = (*PGStore)(nil)
	_ Store = (*pgTxStore)(nil)
)

const uniqueViolation = "23505"

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// sub-stores run unchanged inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGStore implements Store using PostgreSQL through database/sql with the
// pgx stdlib driver.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore { return &roleStore{db: s.db} }
func (s *PGStore) UserRoles(context.Context) UserRoleStore {
	return &userRoleStore{db: s.db, begin: s.db.BeginTx}
}
func (s *PGStore) Departments(context.Context) DepartmentStore { return &departmentStore{db: s.db} }

// InTx runs fn against a store whose operations share one transaction. An
// error from fn rolls everything back.
func (s *PGStore) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback()
	if err := fn(&pgTxStore{tx: tx}); err != nil {
		return err
	}
	return translateErr(tx.Commit())
}

// pgTxStore serves the sub-stores over an open transaction. Assign runs
// directly on the transaction instead of opening its own.
type pgTxStore struct{ tx *sql.Tx }

func (s *pgTxStore) Users(context.Context) UserStore             { return &userStore{db: s.tx} }
func (s *pgTxStore) Roles(context.Context) RoleStore             { return &roleStore{db: s.tx} }
func (s *pgTxStore) UserRoles(context.Context) UserRoleStore     { return &userRoleStore{db: s.tx} }
func (s *pgTxStore) Departments(context.Context) DepartmentStore { return &departmentStore{db: s.tx} }

func (s *pgTxStore) InTx(_ context.Context, fn func(Store) error) error { return fn(s) }

// translateErr maps driver-level failures onto the package sentinels so the
// raw store error never reaches a caller.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

// User store ---------------------------------------------------------------

type userStore struct{ db dbtx }

const userColumns = `id, email, username, password_hash, first_name, last_name, phone_number,
	status, enabled, account_non_locked, credentials_non_expired, failed_login_attempts,
	locked_at, last_login_at, password_changed_at, department_id,
	medical_license_number, specialty, insurance_policy_number, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	// Timestamps are set here, not by column defaults, so the struct handed
	// back to the caller matches the stored row.
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, username, password_hash, first_name, last_name, phone_number,
			status, enabled, account_non_locked, credentials_non_expired, failed_login_attempts,
			locked_at, last_login_at, password_changed_at, department_id,
			medical_license_number, specialty, insurance_policy_number, created_at, updated_at)
		 values($1,$2,nullif($3,''),$4,$5,$6,nullif($7,''),$8,$9,$10,$11,$12,$13,$14,$15,nullif($16,''),
			nullif($17,''),nullif($18,''),nullif($19,''),$20,$21)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.PhoneNumber,
		string(u.Status), u.Enabled, u.AccountNonLocked, u.CredentialsNonExpired, u.FailedLoginAttempts,
		u.LockedAt, u.LastLoginAt, u.PasswordChangedAt, u.DepartmentID,
		u.MedicalLicenseNumber, u.Specialty, u.InsurancePolicyNumber, u.CreatedAt, u.UpdatedAt,
	)
	return translateErr(err)
}

func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		u          User
		username   sql.NullString
		phone      sql.NullString
		deptID     sql.NullString
		license    sql.NullString
		specialty  sql.NullString
		policy     sql.NullString
		lockedAt   sql.NullTime
		lastLogin  sql.NullTime
		pwdChanged sql.NullTime
		status     string
	)
	if err := row.Scan(
		&u.ID, &u.Email, &username, &u.PasswordHash, &u.FirstName, &u.LastName, &phone,
		&status, &u.Enabled, &u.AccountNonLocked, &u.CredentialsNonExpired, &u.FailedLoginAttempts,
		&lockedAt, &lastLogin, &pwdChanged, &deptID,
		&license, &specialty, &policy, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, translateErr(err)
	}
	u.Status = UserStatus(status)
	u.Username = username.String
	u.PhoneNumber = phone.String
	u.DepartmentID = deptID.String
	u.MedicalLicenseNumber = license.String
	u.Specialty = specialty.String
	u.InsurancePolicyNumber = policy.String
	if lockedAt.Valid {
		u.LockedAt = &lockedAt.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if pwdChanged.Valid {
		u.PasswordChangedAt = &pwdChanged.Time
	}
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from users where id=$1`, userColumns), id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from users where email=$1`, userColumns), email)
	return scanUser(row)
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from users where username=$1`, userColumns), username)
	return scanUser(row)
}

func (s *userStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where email=$1)`, email).Scan(&exists)
	return exists, translateErr(err)
}

func (s *userStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where username=$1)`, username).Scan(&exists)
	return exists, translateErr(err)
}

func (s *userStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set email=$2, username=nullif($3,''), password_hash=$4, first_name=$5,
			last_name=$6, phone_number=nullif($7,''), status=$8, enabled=$9,
			account_non_locked=$10, credentials_non_expired=$11, failed_login_attempts=$12,
			locked_at=$13, last_login_at=$14, password_changed_at=$15,
			department_id=nullif($16,''), updated_at=now()
		 where id=$1`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.FirstName,
		u.LastName, u.PhoneNumber, string(u.Status), u.Enabled,
		u.AccountNonLocked, u.CredentialsNonExpired, u.FailedLoginAttempts,
		u.LockedAt, u.LastLoginAt, u.PasswordChangedAt, u.DepartmentID,
	)
	if err != nil {
		return translateErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select %s from users order by created_at asc`, userColumns))
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var res []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db dbtx }

const roleColumns = `id, name, code, description, role_type, access_level, is_active, is_system_defined, created_at, updated_at`

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, code, description, role_type, access_level, is_active, is_system_defined)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		role.ID, role.Name, role.Code, role.Description, string(role.RoleType),
		role.AccessLevel, role.IsActive, role.IsSystemDefined,
	)
	return translateErr(err)
}

func scanRole(row interface{ Scan(dest ...any) error }) (*Role, error) {
	var (
		r        Role
		roleType string
		desc     sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Code, &desc, &roleType, &r.AccessLevel,
		&r.IsActive, &r.IsSystemDefined, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	r.RoleType = RoleType(roleType)
	r.Description = desc.String
	return &r, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from roles where id=$1`, roleColumns), id)
	return scanRole(row)
}

func (s *roleStore) FindByCode(ctx context.Context, code string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from roles where code=$1`, roleColumns), code)
	return scanRole(row)
}

func (s *roleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select %s from roles order by access_level asc`, roleColumns))
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var res []*Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// UserRole store -----------------------------------------------------------

type userRoleStore struct {
	db dbtx
	// begin is nil when db is already a caller-owned transaction.
	begin func(context.Context, *sql.TxOptions) (*sql.Tx, error)
}

func (s *userRoleStore) Assign(ctx context.Context, ur *UserRole) error {
	if ur.ID == "" {
		ur.ID = ids.New()
	}
	if s.begin == nil {
		return s.assign(ctx, s.db, ur)
	}
	tx, err := s.begin(ctx, nil)
	if err != nil {
		return translateErr(err)
	}
	defer tx.Rollback()
	if err := s.assign(ctx, tx, ur); err != nil {
		return err
	}
	return translateErr(tx.Commit())
}

// assign demotes any existing active primary and inserts the assignment,
// both on q, so the pair stays atomic with whatever transaction the caller
// holds.
func (s *userRoleStore) assign(ctx context.Context, q dbtx, ur *UserRole) error {
	if ur.IsPrimary {
		if _, err := q.ExecContext(ctx,
			`update user_roles set is_primary=false, updated_at=now()
			 where user_id=$1 and is_active and is_primary`, ur.UserID); err != nil {
			return translateErr(err)
		}
	}
	if _, err := q.ExecContext(ctx,
		`insert into user_roles(id, user_id, role_id, is_active, is_primary, assigned_by, notes)
		 values($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''))`,
		ur.ID, ur.UserID, ur.RoleID, ur.IsActive, ur.IsPrimary, ur.AssignedBy, ur.Notes,
	); err != nil {
		return translateErr(err)
	}
	return nil
}

const userRoleSelect = `select ur.id, ur.user_id, ur.role_id, r.code, r.name,
	ur.is_active, ur.is_primary, ur.assigned_at, ur.updated_at, ur.assigned_by, ur.notes
	from user_roles ur join roles r on r.id = ur.role_id`

func scanUserRole(row interface{ Scan(dest ...any) error }) (UserRole, error) {
	var (
		ur         UserRole
		assignedBy sql.NullString
		notes      sql.NullString
	)
	if err := row.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.RoleCode, &ur.RoleName,
		&ur.IsActive, &ur.IsPrimary, &ur.AssignedAt, &ur.UpdatedAt, &assignedBy, &notes); err != nil {
		return UserRole{}, translateErr(err)
	}
	ur.AssignedBy = assignedBy.String
	ur.Notes = notes.String
	return ur, nil
}

func (s *userRoleStore) queryAssignments(ctx context.Context, query string, args ...any) ([]UserRole, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var res []UserRole
	for rows.Next() {
		ur, err := scanUserRole(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ur)
	}
	return res, rows.Err()
}

func (s *userRoleStore) ActiveForUser(ctx context.Context, userID string) ([]UserRole, error) {
	return s.queryAssignments(ctx,
		userRoleSelect+` where ur.user_id=$1 and ur.is_active order by ur.assigned_at asc`, userID)
}

func (s *userRoleStore) ForUser(ctx context.Context, userID string) ([]UserRole, error) {
	return s.queryAssignments(ctx,
		userRoleSelect+` where ur.user_id=$1 order by ur.assigned_at asc`, userID)
}

func (s *userRoleStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update user_roles set is_active=false, is_primary=false, updated_at=now() where id=$1`, id)
	if err != nil {
		return translateErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Department store ---------------------------------------------------------

type departmentStore struct{ db dbtx }

const departmentColumns = `id, code, name, type, head_user_id, created_at, updated_at`

func scanDepartment(row interface{ Scan(dest ...any) error }) (*Department, error) {
	var (
		d    Department
		head sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Type, &head, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	d.HeadUserID = head.String
	return &d, nil
}

func (s *departmentStore) Find(ctx context.Context, id string) (*Department, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from departments where id=$1`, departmentColumns), id)
	return scanDepartment(row)
}

func (s *departmentStore) FindByCode(ctx context.Context, code string) (*Department, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from departments where code=$1`, departmentColumns), code)
	return scanDepartment(row)
}

func (s *departmentStore) List(ctx context.Context) ([]*Department, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select %s from departments order by name asc`, departmentColumns))
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var res []*Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
