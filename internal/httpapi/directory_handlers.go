package httpapi

import (
	"net/http"
	"time"
)

// userSummary is the administrative listing view. Password material and
// role-conditional profile fields stay out of it.
type userSummary struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username,omitempty"`
	FullName     string     `json:"fullName"`
	Status       string     `json:"status"`
	Enabled      bool       `json:"enabled"`
	Locked       bool       `json:"locked"`
	DepartmentID string     `json:"departmentId,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	users, err := a.store.Users(r.Context()).List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "user listing failed")
		return
	}
	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{
			ID:           u.ID,
			Email:        u.Email,
			Username:     u.Username,
			FullName:     u.FullName(),
			Status:       string(u.Status),
			Enabled:      u.Enabled,
			Locked:       !u.AccountNonLocked,
			DepartmentID: u.DepartmentID,
			LastLoginAt:  u.LastLoginAt,
			CreatedAt:    u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out, "count": len(out)})
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	roles, err := a.store.Roles(r.Context()).List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "role listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles, "count": len(roles)})
}

func (a *API) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	departments, err := a.store.Departments(r.Context()).List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "department listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": departments, "count": len(departments)})
}
