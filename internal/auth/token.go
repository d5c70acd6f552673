package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the tokenType claim. Access tokens are
// self-contained: once one validates, authorization never needs a database
// round-trip. Refresh tokens deliberately carry no roles or permissions so a
// misused one authorizes nothing.
const (
	TokenTypeAccess  = "ACCESS"
	TokenTypeRefresh = "REFRESH"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the JWT payload for both token kinds. Refresh tokens populate
// only UserID, Email and TokenType beyond the registered claims.
type Claims struct {
	UserID         string   `json:"userId,omitempty"`
	Email          string   `json:"email,omitempty"`
	Username       string   `json:"username,omitempty"`
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	DepartmentID   string   `json:"departmentId,omitempty"`
	DepartmentName string   `json:"departmentName,omitempty"`
	TokenType      string   `json:"tokenType"`
	jwt.RegisteredClaims
}

// TokenService issues and validates signed, self-contained bearer tokens.
// Validation is pure: no locks, no I/O, safe for unbounded parallelism.
type TokenService struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim stamped on issued tokens.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = strings.TrimSpace(issuer)
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl >= 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl >= 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source, useful for tests.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with the symmetric key.
// The key is held only server-side and is never derivable from a token.
func NewTokenService(key []byte, opts ...TokenOption) (*TokenService, error) {
	if len(key) == 0 {
		return nil, errors.New("auth: signing key is required")
	}
	s := &TokenService{
		key:        key,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs an access token carrying the principal's identity,
// roles, permissions and department snapshot.
func (s *TokenService) IssueAccessToken(principal Principal) (string, time.Time, error) {
	now := s.now().UTC()
	expiry := now.Add(s.accessTTL)
	claims := Claims{
		UserID:      principal.ID,
		Email:       principal.Email,
		Username:    principal.Username,
		FirstName:   principal.FirstName,
		LastName:    principal.LastName,
		Roles:       principal.Roles,
		Permissions: principal.Permissions,
		TokenType:   TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principal.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.NewString(),
		},
	}
	if principal.Department != nil {
		claims.DepartmentID = principal.Department.ID
		claims.DepartmentName = principal.Department.Name
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// IssueRefreshToken signs a minimal refresh token: user id, email and type
// only.
func (s *TokenService) IssueRefreshToken(principal Principal) (string, time.Time, error) {
	now := s.now().UTC()
	expiry := now.Add(s.refreshTTL)
	claims := Claims{
		UserID:    principal.ID,
		Email:     principal.Email,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principal.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// Validate verifies signature, structure and expiry. Any failure, including
// an unsupported algorithm or a truncated token, yields false; nothing ever
// escapes as an error. Expiry is exclusive: a token whose expiry equals the
// current instant is already expired. No clock skew tolerance is applied.
func (s *TokenService) Validate(token string) bool {
	_, err := s.parse(token, true)
	return err == nil
}

// ValidateAccessToken reports whether token is valid and of the ACCESS kind,
// so refresh tokens are never accepted where access tokens are expected.
func (s *TokenService) ValidateAccessToken(token string) bool {
	claims, err := s.parse(token, true)
	return err == nil && claims.TokenType == TokenTypeAccess
}

// ValidateRefreshToken reports whether token is valid and of the REFRESH
// kind.
func (s *TokenService) ValidateRefreshToken(token string) bool {
	claims, err := s.parse(token, true)
	return err == nil && claims.TokenType == TokenTypeRefresh
}

// Decode parses the token without claims validation; intended for use after
// Validate has succeeded. A structurally invalid token yields
// ErrMalformedToken.
func (s *TokenService) Decode(token string) (*Claims, error) {
	return s.parse(token, false)
}

// DecodeAccess decodes and additionally checks the token kind, failing with
// ErrWrongTokenType so callers can log the two cases distinctly.
func (s *TokenService) DecodeAccess(token string) (*Claims, error) {
	claims, err := s.parse(token, false)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// DecodeRefresh decodes and checks for the REFRESH kind.
func (s *TokenService) DecodeRefresh(token string) (*Claims, error) {
	claims, err := s.parse(token, false)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// PrincipalFromAccessToken builds the request-scoped principal from a
// validated access token, with no store lookup. The account flags are set:
// tokens are only ever issued to accessible accounts.
func (s *TokenService) PrincipalFromAccessToken(token string) (Principal, error) {
	claims, err := s.DecodeAccess(token)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{
		ID:                    claims.UserID,
		Email:                 claims.Subject,
		Username:              claims.Username,
		FirstName:             claims.FirstName,
		LastName:              claims.LastName,
		Roles:                 claims.Roles,
		Permissions:           claims.Permissions,
		Enabled:               true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
	}
	if claims.DepartmentID != "" || claims.DepartmentName != "" {
		p.Department = &DepartmentRef{ID: claims.DepartmentID, Name: claims.DepartmentName}
	}
	return p, nil
}

func (s *TokenService) parse(token string, validateClaims bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	}
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	if err != nil {
		return nil, ErrMalformedToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if validateClaims {
		// exp <= now means expired, exact comparison, no leeway.
		if claims.ExpiresAt == nil || !s.now().UTC().Before(claims.ExpiresAt.Time) {
			return nil, ErrInvalidToken
		}
		if strings.TrimSpace(claims.Subject) == "" {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}
