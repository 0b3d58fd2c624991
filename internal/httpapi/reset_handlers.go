package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"hrdesk.org/internal/audit"
	"hrdesk.org/internal/auth"
	"hrdesk.org/internal/obs"
	"hrdesk.org/internal/reset"
)

type resetRequestBody struct {
	Email string `json:"email"`
}

type verifyOTPBody struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordBody struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type changePasswordBody struct {
	EmployeeID      string `json:"employeeId"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (a *API) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	obs.CountResetRequest()
	if err := a.reset.Request(r.Context(), req.Email); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	audit.LogEvent(r.Context(), "auth.reset.request", map[string]any{
		"email": req.Email,
	})

	// Identical response whether or not the email resolved to an account.
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": reset.GenericRequestMessage,
	})
}

func (a *API) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyOTPBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.reset.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		obs.CountResetOutcome("verify_otp", resetOutcomeLabel(err))
		handleResetError(w, r, err)
		return
	}

	obs.CountResetOutcome("verify_otp", "success")
	audit.LogEvent(r.Context(), "auth.reset.otp_verified", map[string]any{
		"email": req.Email,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
	})
}

func (a *API) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	valid, email, err := a.reset.VerifyToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	payload := map[string]any{"valid": valid}
	if valid {
		payload["email"] = email
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.reset.ResetPassword(r.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		obs.CountResetOutcome("reset", resetOutcomeLabel(err))
		handleResetError(w, r, err)
		return
	}

	obs.CountResetOutcome("reset", "success")
	audit.LogEvent(r.Context(), "auth.reset.confirm", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "password has been reset",
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req changePasswordBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID == "" {
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
			employeeID = claims.EmployeeID
		}
	}
	if employeeID == "" {
		writeError(w, r, http.StatusBadRequest, "employeeId is required")
		return
	}

	err := a.reset.ChangePassword(r.Context(), employeeID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		handleResetError(w, r, err)
		return
	}

	audit.LogEvent(r.Context(), "auth.password.change", map[string]any{
		"employee_id": employeeID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "password has been changed",
	})
}

func (a *API) handleCheckExpiry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	employeeID := strings.TrimSpace(r.URL.Query().Get("employeeId"))
	if employeeID == "" {
		writeError(w, r, http.StatusBadRequest, "employeeId query parameter is required")
		return
	}
	a.writeExpiry(w, r, employeeID)
}

func (a *API) handleMyExpiry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "no token")
		return
	}
	a.writeExpiry(w, r, claims.EmployeeID)
}

func (a *API) writeExpiry(w http.ResponseWriter, r *http.Request, employeeID string) {
	status, err := a.reset.CheckExpiry(r.Context(), employeeID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleResetError maps flow errors onto the HTTP taxonomy: validation and
// token problems are 400 with their user-actionable message, a failed
// current-password check is 401, anything unexpected is a generic 500.
func handleResetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reset.ErrInvalidOTPOrEmail),
		errors.Is(err, reset.ErrInvalidOTP),
		errors.Is(err, reset.ErrOTPExpired),
		errors.Is(err, reset.ErrInvalidResetToken),
		errors.Is(err, reset.ErrPasswordMismatch),
		errors.Is(err, reset.ErrSamePassword):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, r, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "auth: "))
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, strings.TrimPrefix(err.Error(), "auth: "))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "employee not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func resetOutcomeLabel(err error) string {
	switch {
	case errors.Is(err, reset.ErrOTPExpired):
		return "expired"
	case errors.Is(err, reset.ErrInvalidOTP), errors.Is(err, reset.ErrInvalidOTPOrEmail):
		return "invalid_otp"
	case errors.Is(err, reset.ErrInvalidResetToken):
		return "invalid_token"
	case errors.Is(err, reset.ErrPasswordMismatch), errors.Is(err, reset.ErrSamePassword), errors.Is(err, auth.ErrWeakPassword):
		return "validation"
	default:
		return "error"
	}
}
