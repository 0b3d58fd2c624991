package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"hrdesk.org/internal/audit"
	"hrdesk.org/internal/auth"
	"hrdesk.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type loginResponse struct {
	StatusCode  int       `json:"statusCode"`
	Message     string    `json:"message"`
	AccessToken string    `json:"accessToken"`
	User        loginUser `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	session, err := a.auth.SignIn(r.Context(), email, req.Password)
	if err != nil {
		var statusErr *auth.StatusError
		switch {
		case errors.As(err, &statusErr):
			// Deliberate: the account status is surfaced for operator
			// support, trading off enumeration hardening on this path.
			obs.CountLogin("unauthorized")
			audit.LogEvent(r.Context(), "auth.login.failure", map[string]any{
				"email":  email,
				"reason": "status",
				"status": string(statusErr.Status),
			})
			writeError(w, r, http.StatusUnauthorized, statusErr.Error())
		case errors.Is(err, auth.ErrNotFound):
			obs.CountLogin("not_found")
			audit.LogEvent(r.Context(), "auth.login.failure", map[string]any{
				"email":  email,
				"reason": "unknown_email",
			})
			writeError(w, r, http.StatusNotFound, "no account found for that email")
		case errors.Is(err, auth.ErrUnauthorized):
			obs.CountLogin("unauthorized")
			audit.LogEvent(r.Context(), "auth.login.failure", map[string]any{
				"email":  email,
				"reason": "bad_credentials",
			})
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
		default:
			obs.CountLogin("error")
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.CountLogin("success")
	obs.CountTokenIssued()
	audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"employee_id": session.Claims.EmployeeID,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   cookieMaxAge(a.auth.TokenTTL()),
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		StatusCode:  http.StatusOK,
		Message:     "login successful",
		AccessToken: session.Token,
		User: loginUser{
			ID:    session.Claims.EmployeeID,
			Email: session.Claims.Email,
			Roles: session.Claims.Roles,
		},
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// Client-side logout only: the cookie is dropped, the token itself
	// stays valid until it expires.
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "logged out",
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "no token")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}
