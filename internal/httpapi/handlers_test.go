package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleetgrid.io/internal/auth"
)

// stubService lets each test script the session manager's behavior.
type stubService struct {
	authenticateFn func(ctx context.Context, email, password string, meta auth.ClientMeta) (auth.Session, error)
	refreshFn      func(ctx context.Context, refreshToken string) (auth.Session, error)
	logoutFn       func(ctx context.Context, accessToken string) error
	validateFn     func(token string) (*auth.Claims, error)
	registerFn     func(ctx context.Context, email, password, fullName, companyID string) error
	verifyEmailFn  func(ctx context.Context, email, code string) error
	resetReqFn     func(ctx context.Context, email string) error
	resetFn        func(ctx context.Context, email, code, newPassword string) error
	resetCheckFn   func(ctx context.Context, email, code string) bool
	changeRoleFn   func(ctx context.Context, actorID, targetID string, newRole auth.Role, reason string) error
}

func (s *stubService) Authenticate(ctx context.Context, email, password string, meta auth.ClientMeta) (auth.Session, error) {
	if s.authenticateFn == nil {
		return auth.Session{}, errors.New("unexpected Authenticate call")
	}
	return s.authenticateFn(ctx, email, password, meta)
}

func (s *stubService) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	if s.refreshFn == nil {
		return auth.Session{}, errors.New("unexpected Refresh call")
	}
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubService) Logout(ctx context.Context, accessToken string) error {
	if s.logoutFn == nil {
		return errors.New("unexpected Logout call")
	}
	return s.logoutFn(ctx, accessToken)
}

func (s *stubService) Validate(token string) (*auth.Claims, error) {
	if s.validateFn == nil {
		return nil, auth.ErrInvalidToken
	}
	return s.validateFn(token)
}

func (s *stubService) Register(ctx context.Context, email, password, fullName, companyID string) error {
	if s.registerFn == nil {
		return errors.New("unexpected Register call")
	}
	return s.registerFn(ctx, email, password, fullName, companyID)
}

func (s *stubService) VerifyEmail(ctx context.Context, email, code string) error {
	if s.verifyEmailFn == nil {
		return errors.New("unexpected VerifyEmail call")
	}
	return s.verifyEmailFn(ctx, email, code)
}

func (s *stubService) RequestPasswordReset(ctx context.Context, email string) error {
	if s.resetReqFn == nil {
		return errors.New("unexpected RequestPasswordReset call")
	}
	return s.resetReqFn(ctx, email)
}

func (s *stubService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if s.resetFn == nil {
		return errors.New("unexpected ResetPassword call")
	}
	return s.resetFn(ctx, email, code, newPassword)
}

func (s *stubService) IsResetCodeValid(ctx context.Context, email, code string) bool {
	if s.resetCheckFn == nil {
		return false
	}
	return s.resetCheckFn(ctx, email, code)
}

func (s *stubService) ChangeRole(ctx context.Context, actorID, targetID string, newRole auth.Role, reason string) error {
	if s.changeRoleFn == nil {
		return errors.New("unexpected ChangeRole call")
	}
	return s.changeRoleFn(ctx, actorID, targetID, newRole, reason)
}

func newTestAPI(svc *stubService) http.Handler {
	return New(svc, ReadyProbe{}, "test", RateLimitConfig{}).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := newTestAPI(&stubService{})
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != "test" || body["service"] != "fleetgrid-auth" {
		t.Fatalf("unexpected body: %v", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestAuthenticateEndpoint(t *testing.T) {
	svc := &stubService{}
	h := newTestAPI(svc)

	t.Run("success", func(t *testing.T) {
		svc.authenticateFn = func(_ context.Context, email, password string, meta auth.ClientMeta) (auth.Session, error) {
			if email != "user@acme.test" || password != "pw" {
				t.Fatalf("credentials not forwarded: %s/%s", email, password)
			}
			if meta.UserAgent == "" || meta.IP == "" {
				t.Fatalf("client metadata not captured: %+v", meta)
			}
			return auth.Session{
				AccessToken:  "access",
				RefreshToken: "id.secret",
				TokenType:    "Bearer",
				ExpiresAt:    time.Now().Add(15 * time.Minute),
			}, nil
		}
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/token",
			`{"email":"user@acme.test","password":"pw"}`,
			map[string]string{"User-Agent": "go-test"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
		}
		var session auth.Session
		if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if session.AccessToken != "access" || session.TokenType != "Bearer" {
			t.Fatalf("unexpected session: %+v", session)
		}
	})

	t.Run("invalid credentials", func(t *testing.T) {
		svc.authenticateFn = func(context.Context, string, string, auth.ClientMeta) (auth.Session, error) {
			return auth.Session{}, auth.ErrInvalidCredentials
		}
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/token", `{"email":"a@b.c","password":"x"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status: got %d", rec.Code)
		}
	})

	t.Run("locked out", func(t *testing.T) {
		svc.authenticateFn = func(context.Context, string, string, auth.ClientMeta) (auth.Session, error) {
			return auth.Session{}, &auth.LockedError{RetryAfter: 15 * time.Minute}
		}
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/token", `{"email":"a@b.c","password":"x"}`, nil)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status: got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") != "900" {
			t.Fatalf("Retry-After: got %q", rec.Header().Get("Retry-After"))
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/token", `{"email":`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d", rec.Code)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/token", `{"email":"a@b.c","password":"x","extra":1}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/v1/auth/token", "", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status: got %d", rec.Code)
		}
		if rec.Header().Get("Allow") != http.MethodPost {
			t.Fatalf("Allow: got %q", rec.Header().Get("Allow"))
		}
	})
}

func TestRegisterEndpoint(t *testing.T) {
	svc := &stubService{}
	h := newTestAPI(svc)

	t.Run("accepted", func(t *testing.T) {
		svc.registerFn = func(_ context.Context, email, _, fullName, companyID string) error {
			if email != "new@acme.test" || fullName != "New Driver" || companyID != "acme" {
				t.Fatalf("request not forwarded: %s/%s/%s", email, fullName, companyID)
			}
			return nil
		}
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/register",
			`{"email":"new@acme.test","password":"Sufficient1","full_name":"New Driver","company_id":"acme"}`, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc.registerFn = func(context.Context, string, string, string, string) error {
			return auth.ErrEmailTaken
		}
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/register",
			`{"email":"taken@acme.test","password":"Sufficient1","full_name":"X","company_id":"acme"}`, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status: got %d", rec.Code)
		}
	})

	t.Run("policy violations are detailed", func(t *testing.T) {
		svc.registerFn = func(context.Context, string, string, string, string) error {
			return &auth.PolicyError{Violations: []string{"must be at least 8 characters", "must contain a digit"}}
		}
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/register",
			`{"email":"x@acme.test","password":"weak","full_name":"X","company_id":"acme"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status: got %d", rec.Code)
		}
		var body struct {
			Violations []string `json:"violations"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Violations) != 2 {
			t.Fatalf("violations: got %v", body.Violations)
		}
	})
}

func TestCodeErrorsCollapseExternally(t *testing.T) {
	svc := &stubService{}
	h := newTestAPI(svc)

	bodies := map[string]error{
		"invalid": auth.ErrCodeInvalid,
		"expired": auth.ErrCodeExpired,
		"used":    auth.ErrCodeUsed,
	}
	var messages []string
	for name, codeErr := range bodies {
		svc.verifyEmailFn = func(context.Context, string, string) error { return codeErr }
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/verify-email",
			`{"email":"a@b.c","code":"123456"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got %d", name, rec.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		messages = append(messages, body["error"].(string))
	}
	for _, msg := range messages {
		if msg != messages[0] {
			t.Fatalf("code failure messages must be indistinguishable: %v", messages)
		}
	}
}

func TestPasswordResetCheck(t *testing.T) {
	svc := &stubService{
		resetCheckFn: func(_ context.Context, email, code string) bool {
			return email == "user@acme.test" && code == "livecode"
		},
	}
	h := newTestAPI(svc)

	rec := doJSON(t, h, http.MethodGet, "/v1/auth/password-reset/check?email=user@acme.test&code=livecode", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["valid"] {
		t.Fatal("expected valid=true")
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/auth/password-reset/check?email=user@acme.test", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing code: status got %d", rec.Code)
	}
}

func TestLogoutRequiresBearer(t *testing.T) {
	svc := &stubService{}
	h := newTestAPI(svc)

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d", rec.Code)
	}

	var revoked string
	svc.validateFn = func(token string) (*auth.Claims, error) {
		return &auth.Claims{}, nil
	}
	svc.logoutFn = func(_ context.Context, accessToken string) error {
		revoked = accessToken
		return nil
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/logout", "",
		map[string]string{"Authorization": "Bearer some-access-token"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	if revoked != "some-access-token" {
		t.Fatalf("token not forwarded: %q", revoked)
	}
}
