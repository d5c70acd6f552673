package httpapi

import (
	"errors"
	"net/http"

	"mediclaim.org/internal/audit"
	"mediclaim.org/internal/auth"
	"mediclaim.org/internal/obs"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var in auth.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Login(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.CountLogin("bad_credentials")
		case errors.Is(err, auth.ErrAccountInaccessible):
			obs.CountLogin("inaccessible")
		default:
			obs.CountLogin("error")
		}
		a.writeAuthError(w, r, err, "login")
		return
	}

	obs.CountLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email": result.User.Email,
		"roles": result.User.Roles,
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var in auth.SignupInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Signup(r.Context(), in)
	if err != nil {
		var vErr *auth.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeValidationError(w, r, []fieldError{{Field: vErr.Field, Message: vErr.Message}})
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "signup failed")
		}
		return
	}

	role := ""
	if len(result.User.Roles) > 0 {
		role = result.User.Roles[0]
	}
	obs.CountSignup(role)
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"email": result.User.Email,
		"role":  role,
	})
	writeJSON(w, http.StatusCreated, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeAuthError(w, r, err, "refresh")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"email": result.User.Email,
	})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Best effort only: stateless tokens stay valid until expiry.
	if email, ok := a.svc.Logout(r.Context(), req.RefreshToken); ok {
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"email": email})
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Valid     bool     `json:"valid"`
	TokenType string   `json:"tokenType,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

func (a *API) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req validateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tokens := a.svc.Tokens()
	if !tokens.Validate(req.Token) {
		writeJSON(w, http.StatusOK, validateTokenResponse{Valid: false})
		return
	}
	claims, err := tokens.Decode(req.Token)
	if err != nil {
		writeJSON(w, http.StatusOK, validateTokenResponse{Valid: false})
		return
	}
	writeJSON(w, http.StatusOK, validateTokenResponse{
		Valid:     true,
		TokenType: claims.TokenType,
		Email:     claims.Subject,
		Roles:     claims.Roles,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	info, err := a.svc.CurrentUser(r.Context())
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "profile lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// writeAuthError maps orchestrator failures onto transport statuses. The
// credential-mismatch message stays generic; account-state problems are
// named, since the caller already proved knowledge of the password.
func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var vErr *auth.ValidationError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, auth.ErrAccountInaccessible):
		writeError(w, r, http.StatusUnauthorized, "User account is not accessible")
	case errors.Is(err, auth.ErrInvalidToken):
		obs.CountTokenRejection()
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
	case errors.As(err, &vErr):
		writeValidationError(w, r, []fieldError{{Field: vErr.Field, Message: vErr.Message}})
	default:
		writeError(w, r, http.StatusInternalServerError, op+" failed")
	}
}
