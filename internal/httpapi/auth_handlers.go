package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"fleetgrid.io/internal/auth"
)

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	CompanyID string `json:"company_id"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type changeRoleRequest struct {
	TargetID string `json:"target_id"`
	NewRole  string `json:"new_role"`
	Reason   string `json:"reason,omitempty"`
}

func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req authenticateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.auth.Authenticate(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	if err := a.auth.Logout(r.Context(), token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.Register(r.Context(), req.Email, req.Password, req.FullName, req.CompanyID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "verification_sent",
	})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "verified",
	})
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Always 202: the response must not reveal whether the account exists.
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "reset_requested",
	})
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "password_changed",
	})
}

func (a *API) handlePasswordResetCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if email == "" || code == "" {
		writeError(w, r, http.StatusBadRequest, "email and code are required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": a.auth.IsResetCodeValid(r.Context(), email, code),
	})
}

func (a *API) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	newRole, err := auth.ParseRole(req.NewRole)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ChangeRole(r.Context(), principal.IdentityID, req.TargetID, newRole, req.Reason); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "role_changed",
	})
}

// handleAuthError maps the error taxonomy onto HTTP statuses. Code failures
// collapse into one message externally; policy violations stay detailed.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *auth.LockedError
	var policy *auth.PolicyError
	switch {
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", retryAfterSeconds(locked.RetryAfter))
		writeError(w, r, http.StatusTooManyRequests, "account temporarily locked")
	case errors.As(err, &policy):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "password policy violated",
			"violations": policy.Violations,
		})
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrAccountNotActive):
		writeError(w, r, http.StatusForbidden, "account is not active")
	case errors.Is(err, auth.ErrCompanySuspended):
		writeError(w, r, http.StatusForbidden, "company is suspended")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrCodeInvalid),
		errors.Is(err, auth.ErrCodeExpired),
		errors.Is(err, auth.ErrCodeUsed):
		writeError(w, r, http.StatusBadRequest, "invalid or expired code")
	case errors.Is(err, auth.ErrEscalationDenied):
		writeError(w, r, http.StatusForbidden, "privilege escalation denied")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func clientMeta(r *http.Request) auth.ClientMeta {
	return auth.ClientMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
