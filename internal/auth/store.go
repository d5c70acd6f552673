package auth

import "context"

// Store describes the persistence operations the auth subsystem needs. The
// backing database enforces uniqueness on email, username and role code; a
// unique violation surfaces as ErrAlreadyExists and is the backstop against
// concurrent signups racing on the same email.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	UserRoles(ctx context.Context) UserRoleStore
	Departments(ctx context.Context) DepartmentStore

	// InTx runs fn against a store whose operations share one transaction;
	// an error from fn rolls every write back. Multi-record invariants such
	// as "a signup either creates the user with its role or creates
	// nothing" go through here.
	InTx(ctx context.Context, fn func(Store) error) error
}

// UserStore manages identity records. Records are never deleted; MarkDeleted
// state is persisted through Update like any other mutation.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context) ([]*User, error)
}

// RoleStore manages the role catalog.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByCode(ctx context.Context, code string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
}

// UserRoleStore manages role assignments. Queries return assignments
// denormalized with role code and name so callers never walk a graph.
type UserRoleStore interface {
	// Assign inserts the assignment. When it is marked primary, any
	// existing active primary for the same user is demoted in the same
	// transaction, preserving the at-most-one-active-primary invariant.
	Assign(ctx context.Context, ur *UserRole) error
	ActiveForUser(ctx context.Context, userID string) ([]UserRole, error)
	ForUser(ctx context.Context, userID string) ([]UserRole, error)
	Deactivate(ctx context.Context, id string) error
}

// DepartmentStore manages departments, referenced by users and embedded in
// tokens only as snapshots.
type DepartmentStore interface {
	Find(ctx context.Context, id string) (*Department, error)
	FindByCode(ctx context.Context, code string) (*Department, error)
	List(ctx context.Context) ([]*Department, error)
}
