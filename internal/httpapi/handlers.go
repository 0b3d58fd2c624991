package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"hrdesk.org/internal/auth"
	"hrdesk.org/internal/config"
	"hrdesk.org/internal/obs"
	"hrdesk.org/internal/reset"
)

// ReadyProbe checks downstream readiness (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth core.
type API struct {
	mux        *http.ServeMux
	cfg        config.Config
	auth       *auth.Service
	reset      *reset.Flow
	readyProbe ReadyProbe
	version    string

	// public holds the per-route session-bypass capability, populated at
	// registration time. The session gate consults it instead of a path
	// list.
	public map[string]bool
}

func New(cfg config.Config, authSvc *auth.Service, resetFlow *reset.Flow, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		auth:       authSvc,
		reset:      resetFlow,
		readyProbe: rp,
		version:    version,
		public:     make(map[string]bool),
	}

	a.handle("/healthz", true, a.Healthz)
	a.handle("/readyz", true, a.Ready)
	a.mux.Handle("/metrics", obs.Handler())
	a.public["/metrics"] = true

	a.handle("/auth/login", true, a.handleLogin)
	a.handle("/auth/logout", true, a.handleLogout)
	a.handle("/auth/me", false, a.handleMe)

	a.handle("/password-reset/request", true, a.handleResetRequest)
	a.handle("/password-reset/verify-otp", true, a.handleVerifyOTP)
	a.handle("/password-reset/verify-token", true, a.handleVerifyToken)
	a.handle("/password-reset/reset", true, a.handleResetPassword)
	a.handle("/password-reset/change", false, a.handleChangePassword)
	a.handle("/password-reset/check-expiry", false, a.handleCheckExpiry)
	a.handle("/password-reset/my-expiry", false, a.handleMyExpiry)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	a.public["/"] = true

	return a
}

// handle registers a route together with its public capability.
func (a *API) handle(path string, public bool, h http.HandlerFunc) {
	a.mux.HandleFunc(path, h)
	a.public[path] = public
}

// Handler returns the full middleware stack around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withSession(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = RateLimit(h, a.cfg.RateLimitBurst, a.cfg.RateLimitPerSecond)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "hrdesk-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func cookieMaxAge(ttl time.Duration) int {
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
