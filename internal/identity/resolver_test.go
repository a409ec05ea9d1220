package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.StandardClaims, key string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestResolveOpaqueToken(t *testing.T) {
	r := NewResolver(Config{})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if id, err := r.Resolve(req); err != nil || id != "" {
		t.Fatalf("expected anonymous, got %q %v", id, err)
	}

	req.AddCookie(&http.Cookie{Name: "userId", Value: "cookie-user"})
	if id, _ := r.Resolve(req); id != "cookie-user" {
		t.Fatalf("expected cookie identity, got %q", id)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?token=query-user", nil)
	req.AddCookie(&http.Cookie{Name: "userId", Value: "cookie-user"})
	if id, _ := r.Resolve(req); id != "query-user" {
		t.Fatalf("query param should win, got %q", id)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer header-user")
	if id, _ := r.Resolve(req); id != "header-user" {
		t.Fatalf("expected bearer identity, got %q", id)
	}
}

func TestResolveIgnoresCookieWhenVerifying(t *testing.T) {
	r := NewResolver(Config{Secret: secret})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "userId", Value: "cookie-user"})
	if id, err := r.Resolve(req); err != nil || id != "" {
		t.Fatalf("expected anonymous, got %q %v", id, err)
	}

	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.StandardClaims{Subject: "u-7"}, secret))
	if id, err := r.Resolve(req); err != nil || id != "u-7" {
		t.Fatalf("expected token subject, got %q %v", id, err)
	}
}

func TestVerifyHS256(t *testing.T) {
	r := NewResolver(Config{Secret: secret, Issuer: "auth"})
	now := time.Now()

	good := sign(t, jwt.StandardClaims{Subject: "42", Issuer: "auth", ExpiresAt: now.Add(time.Hour).Unix()}, secret)
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+good, nil)
	if id, err := r.Resolve(req); err != nil || id != "42" {
		t.Fatalf("expected subject 42, got %q %v", id, err)
	}

	cases := map[string]struct {
		token string
		want  error
	}{
		"wrong key":    {sign(t, jwt.StandardClaims{Subject: "42", Issuer: "auth"}, "other"), ErrInvalidToken},
		"expired":      {sign(t, jwt.StandardClaims{Subject: "42", Issuer: "auth", ExpiresAt: now.Add(-time.Hour).Unix()}, secret), ErrInvalidToken},
		"wrong issuer": {sign(t, jwt.StandardClaims{Subject: "42", Issuer: "other"}, secret), ErrInvalidIssuer},
		"no subject":   {sign(t, jwt.StandardClaims{Issuer: "auth"}, secret), ErrInvalidSubject},
		"not a jwt":    {"garbage", ErrInvalidToken},
	}
	for name, tc := range cases {
		if _, err := r.Verify(tc.token); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", name, err, tc.want)
		}
	}
}

func TestVerifyClockSkew(t *testing.T) {
	r := NewResolver(Config{Secret: secret, ClockSkew: time.Minute})
	tok := sign(t, jwt.StandardClaims{Subject: "7", ExpiresAt: time.Now().Add(-10 * time.Second).Unix()}, secret)
	if id, err := r.Verify(tok); err != nil || id != "7" {
		t.Fatalf("token within skew should pass, got %q %v", id, err)
	}
}

func TestPick(t *testing.T) {
	open := NewResolver(Config{})
	if got := open.Pick("", "claimed", "conn"); got != "claimed" {
		t.Fatalf("unverified mode should accept claimed identity, got %q", got)
	}
	if got := open.Pick("", " ", "conn"); got != "conn" {
		t.Fatalf("blank claim should fall back to conn id, got %q", got)
	}

	strict := NewResolver(Config{Secret: secret})
	if got := strict.Pick("", "claimed", "conn"); got != "conn" {
		t.Fatalf("verified mode must ignore claims, got %q", got)
	}
	if got := strict.Pick("token-user", "claimed", "conn"); got != "token-user" {
		t.Fatalf("token identity should win, got %q", got)
	}
}
