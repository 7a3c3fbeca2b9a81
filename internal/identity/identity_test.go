package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Sprinter100/dobble/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, Options{Secret: "test-secret", TTL: time.Hour, Cost: bcrypt.MinCost})
}

func TestRegisterValidation(t *testing.T) {
	s := newTestService(t)
	tests := []struct {
		name, username, password string
	}{
		{"short username", "ab", "secret1"},
		{"blank username", "   ", "secret1"},
		{"short password", "alice", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Register(tt.username, tt.password); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestService(t)
	u, err := s.Register("  alice ", "secret1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Username != "alice" || u.PasswordHash == "secret1" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := s.Register("Alice", "another"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	got, err := s.Login("alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected %s, got %s", u.ID, got.ID)
	}
	if _, err := s.Login("alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Login("nobody", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestService(t)
	u, _ := s.Register("alice", "secret1")

	tok, exp, err := s.IssueToken(u)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.ParseToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != u.ID || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Expires.Unix() != exp.Unix() {
		t.Fatalf("expected expiry %v, got %v", exp, claims.Expires)
	}
}

func TestParseTokenRejects(t *testing.T) {
	s := newTestService(t)
	u, _ := s.Register("alice", "secret1")
	tok, _, _ := s.IssueToken(u)

	other := NewService(nil, Options{Secret: "other-secret"})
	if _, err := other.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong key, got %v", err)
	}
	if _, err := s.ParseToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func identityHandler(got *Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = FromContext(r.Context())
	})
}

func TestMiddlewareIssuesDeviceID(t *testing.T) {
	s := newTestService(t)
	var got Identity
	h := s.Middleware(identityHandler(&got))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got.PlayerID == "" || got.Authenticated {
		t.Fatalf("expected anonymous device identity, got %+v", got)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DeviceCookie || cookies[0].Value != got.PlayerID {
		t.Fatalf("expected device cookie matching %s, got %+v", got.PlayerID, cookies)
	}

	// The same cookie yields the same identity and no new cookie.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	first := got.PlayerID
	h.ServeHTTP(rec, req)
	if got.PlayerID != first {
		t.Fatalf("expected %s, got %s", first, got.PlayerID)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("expected no cookie for a known device")
	}
}

func TestMiddlewareReplacesMalformedDeviceID(t *testing.T) {
	s := newTestService(t)
	var got Identity
	h := s.Middleware(identityHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: "nope"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got.PlayerID == "nope" {
		t.Fatal("malformed device id must be replaced")
	}
}

func TestMiddlewarePrefersAccount(t *testing.T) {
	s := newTestService(t)
	u, _ := s.Register("alice", "secret1")
	tok, _, _ := s.IssueToken(u)

	var got Identity
	h := s.Middleware(identityHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: tok})
	req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: "7d0b5f8e-4c1a-4f57-9c2e-3f1f5f0e8a11"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !got.Authenticated || got.PlayerID != u.ID || got.Name != "alice" {
		t.Fatalf("expected account identity, got %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !got.Authenticated {
		t.Fatal("expected bearer token to authenticate")
	}
}

func TestTokenCookies(t *testing.T) {
	s := newTestService(t)
	rec := httptest.NewRecorder()
	s.SetTokenCookie(rec, "tok", time.Now().Add(time.Hour))
	c := rec.Result().Cookies()
	if len(c) != 1 || c[0].Name != TokenCookie || c[0].Value != "tok" || !c[0].HttpOnly {
		t.Fatalf("unexpected cookie: %+v", c)
	}

	rec = httptest.NewRecorder()
	s.ClearTokenCookie(rec)
	c = rec.Result().Cookies()
	if len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("expected expiring cookie, got %+v", c)
	}
}
