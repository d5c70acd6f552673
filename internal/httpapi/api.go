package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"mediclaim.org/internal/auth"
	"mediclaim.org/internal/obs"
)

// ReadyProbe checks backing-store reachability for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tunes the transport wrapping.
type Options struct {
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

func (o Options) withDefaults() Options {
	if o.RateLimitPerSecond <= 0 {
		o.RateLimitPerSecond = 20
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 40
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	return o
}

// API is the HTTP layer of the user-service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	store      auth.Store
	readyProbe ReadyProbe
	version    string
	opts       Options
}

// New wires the route table. Route access rules live in authn.go; handlers
// can assume a principal is present wherever the rule demands one.
func New(svc *auth.Service, store auth.Store, rp ReadyProbe, version string, opts Options) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		store:      store,
		readyProbe: rp,
		version:    version,
		opts:       opts.withDefaults(),
	}

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/validate-token", a.handleValidateToken)
	a.mux.HandleFunc("/auth/me", a.handleMe)

	a.mux.HandleFunc("/users", a.handleListUsers)
	a.mux.HandleFunc("/roles", a.handleListRoles)
	a.mux.HandleFunc("/departments", a.handleListDepartments)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped server handler.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.RateLimitBurst, a.opts.RateLimitPerSecond)
	h = Logging(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "user-service",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "user-service",
		"version": a.version,
	})
}
