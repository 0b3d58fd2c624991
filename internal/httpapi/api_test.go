package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hrdesk.org/internal/auth"
	"hrdesk.org/internal/config"
	"hrdesk.org/internal/reset"
)

// fakeStore is an in-memory auth.Store for handler tests.
type fakeStore struct {
	mu         sync.Mutex
	identities map[string]*auth.Identity
	roles      map[string][]string
	history    []*auth.PasswordHistory
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: make(map[string]*auth.Identity),
		roles:      make(map[string][]string),
	}
}

func (s *fakeStore) add(ident *auth.Identity, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ident
	s.identities[ident.ID] = &cp
	s.roles[ident.ID] = roles
}

func (s *fakeStore) FindIdentity(ctx context.Context, id string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (s *fakeStore) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, ident := range s.identities {
		if strings.ToLower(ident.WorkEmail) == email || strings.ToLower(ident.PersonalEmail) == email {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeStore) RolesForIdentity(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[id], nil
}

func (s *fakeStore) SetResetOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	ident.ResetOTPHash = otpHash
	ident.ResetOTPExpiresAt = expiresAt
	ident.ResetTokenHash = ""
	ident.ResetTokenExpiresAt = time.Time{}
	return nil
}

func (s *fakeStore) ClearResetOTP(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	ident.ResetOTPHash = ""
	ident.ResetOTPExpiresAt = time.Time{}
	return nil
}

func (s *fakeStore) ConsumeResetOTP(ctx context.Context, id, otpHash, tokenHash string, tokenExpiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return false, auth.ErrNotFound
	}
	if ident.ResetOTPHash == "" || ident.ResetOTPHash != otpHash {
		return false, nil
	}
	ident.ResetOTPHash = ""
	ident.ResetOTPExpiresAt = time.Time{}
	ident.ResetTokenHash = tokenHash
	ident.ResetTokenExpiresAt = tokenExpiresAt
	return true, nil
}

func (s *fakeStore) FindIdentityByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ident := range s.identities {
		if ident.ResetTokenHash != "" && ident.ResetTokenHash == tokenHash && ident.ResetTokenExpiresAt.After(now) {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *fakeStore) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return false, auth.ErrNotFound
	}
	if ident.ResetTokenHash == "" || ident.ResetTokenHash != tokenHash || !ident.ResetTokenExpiresAt.After(now) {
		return false, nil
	}
	ident.PasswordHash = passwordHash
	ident.ResetTokenHash = ""
	ident.ResetTokenExpiresAt = time.Time{}
	return true, nil
}

func (s *fakeStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	ident.PasswordHash = passwordHash
	return nil
}

func (s *fakeStore) AppendPasswordHistory(ctx context.Context, rec *auth.PasswordHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.history = append(s.history, &cp)
	return nil
}

func (s *fakeStore) LatestPasswordHistory(ctx context.Context, employeeID string) (*auth.PasswordHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *auth.PasswordHistory
	for _, rec := range s.history {
		if rec.EmployeeID != employeeID {
			continue
		}
		if latest == nil || rec.ChangedAt.After(latest.ChangedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, auth.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

func (m *fakeMailer) lastBody(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		t.Fatal("expected at least one mail")
	}
	return m.bodies[len(m.bodies)-1]
}

type testEnv struct {
	api     *API
	handler http.Handler
	store   *fakeStore
	mail    *fakeMailer
}

func testConfig() config.Config {
	return config.Config{
		Environment:        "development",
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
		MaxBodyBytes:       1 << 20,
	}
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	store := newFakeStore()
	mail := &fakeMailer{}

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	svc, err := auth.NewService(store, issuer)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	flow, err := reset.NewFlow(store, mail,
		reset.WithSleep(func(ctx context.Context) error { return nil }))
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}

	api := New(cfg, svc, flow, ReadyProbe{}, "test")
	return &testEnv{api: api, handler: api.Handler(), store: store, mail: mail}
}

func (e *testEnv) addEmployee(t *testing.T, id, email, password string, status auth.Status, roles ...string) {
	t.Helper()
	hash := ""
	if password != "" {
		var err error
		hash, err = auth.HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
	}
	e.store.add(&auth.Identity{
		ID:           id,
		WorkEmail:    email,
		PasswordHash: hash,
		Status:       status,
	}, roles...)
}

func (e *testEnv) do(t *testing.T, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range mutate {
		fn(req)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func findCookie(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	res := rr.Result()
	defer res.Body.Close()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	token, _ := decodeBody(t, rr)["accessToken"].(string)
	if token == "" {
		t.Fatal("login response missing accessToken")
	}
	return token
}
