package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"mediclaim.org/internal/auth"
	"mediclaim.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Requirement is the statically declared access rule for a route: public,
// any authenticated principal, or any-of a role-code set. Role codes here
// must match the uppercase codes embedded in access tokens exactly.
type Requirement struct {
	kind  reqKind
	roles []string
}

type reqKind int

const (
	reqPublic reqKind = iota
	reqAuthenticated
	reqAnyRole
)

// Public marks a route reachable without a token.
func Public() Requirement { return Requirement{kind: reqPublic} }

// Authenticated requires a valid access token, any roles.
func Authenticated() Requirement { return Requirement{kind: reqAuthenticated} }

// AnyOf requires a valid access token whose principal holds at least one of
// the given role codes.
func AnyOf(roles ...string) Requirement {
	return Requirement{kind: reqAnyRole, roles: roles}
}

// Allows evaluates the requirement against an authenticated principal.
func (q Requirement) Allows(p auth.Principal) bool {
	switch q.kind {
	case reqPublic, reqAuthenticated:
		return true
	case reqAnyRole:
		return p.HasAnyRole(q.roles...)
	default:
		return false
	}
}

type routeRule struct {
	path   string // exact match when set
	prefix string // prefix match when set
	req    Requirement
}

// routeRules is evaluated top-down, first match wins; unmatched paths
// require authentication.
var routeRules = []routeRule{
	{path: "/auth/login", req: Public()},
	{path: "/auth/signup", req: Public()},
	{path: "/auth/refresh", req: Public()},
	{path: "/auth/logout", req: Public()},
	{path: "/auth/validate-token", req: Public()},
	{path: "/auth/me", req: Authenticated()},
	{path: "/healthz", req: Public()},
	{path: "/readyz", req: Public()},
	{path: "/info", req: Public()},
	{path: "/metrics", req: Public()},
	{prefix: "/users", req: AnyOf(string(auth.RoleAdmin), string(auth.RoleInsuranceProvider))},
	{prefix: "/roles", req: AnyOf(string(auth.RoleAdmin))},
	{prefix: "/departments", req: AnyOf(string(auth.RoleAdmin))},
}

func requirementFor(path string) Requirement {
	for _, rule := range routeRules {
		if rule.path != "" && rule.path == path {
			return rule.req
		}
		if rule.prefix != "" && strings.HasPrefix(path, rule.prefix) {
			return rule.req
		}
	}
	return Authenticated()
}

// withAuth intercepts every request once: it validates the bearer token,
// decodes it into a request-scoped principal with no store lookup, and
// evaluates the route's requirement against it.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		req := requirementFor(r.URL.Path)
		if req.kind == reqPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		if !a.svc.Tokens().ValidateAccessToken(token) {
			obs.CountTokenRejection()
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		principal, err := a.svc.Tokens().PrincipalFromAccessToken(token)
		if err != nil {
			obs.CountTokenRejection()
			writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if !req.Allows(principal) {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
