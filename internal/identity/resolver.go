package identity

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken   = errors.New("invalid identity token")
	ErrInvalidIssuer  = errors.New("invalid token issuer")
	ErrInvalidSubject = errors.New("token has no subject")
)

type Config struct {
	CookieName string
	QueryParam string
	// Secret enables HS256 verification. Empty means tokens are opaque
	// identities taken as is.
	Secret    string
	Issuer    string
	ClockSkew time.Duration
}

// Resolver attaches a durable identity to an incoming connection. Issuing
// tokens is someone else's job.
type Resolver struct {
	cfg Config
	now func() time.Time
}

func NewResolver(cfg Config) *Resolver {
	if cfg.CookieName == "" {
		cfg.CookieName = "userId"
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = "token"
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &Resolver{cfg: cfg, now: time.Now}
}

// Verifying reports whether tokens are checked cryptographically.
func (r *Resolver) Verifying() bool {
	return r.cfg.Secret != ""
}

// Resolve returns the identity carried by req, or "" when it carries none.
// Lookup order: query param, bearer header, cookie. The cookie holds an
// unsigned id, so it is ignored while tokens are verified.
func (r *Resolver) Resolve(req *http.Request) (string, error) {
	if raw := r.rawToken(req); raw != "" {
		if !r.Verifying() {
			return raw, nil
		}
		return r.Verify(raw)
	}
	if r.Verifying() {
		return "", nil
	}
	if c, err := req.Cookie(r.cfg.CookieName); err == nil {
		return strings.TrimSpace(c.Value), nil
	}
	return "", nil
}

func (r *Resolver) rawToken(req *http.Request) string {
	if v := strings.TrimSpace(req.URL.Query().Get(r.cfg.QueryParam)); v != "" {
		return v
	}
	if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}

// Verify checks an HS256 token and returns its subject.
func (r *Resolver) Verify(tokenStr string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return []byte(r.cfg.Secret), nil
	})
	if err != nil {
		// exp/nbf are checked below with clock skew
		var ve *jwt.ValidationError
		if !errors.As(err, &ve) || ve.Errors&^(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet|jwt.ValidationErrorIssuedAt) != 0 {
			return "", ErrInvalidToken
		}
	} else if !token.Valid {
		return "", ErrInvalidToken
	}

	now := r.now()
	if claims.ExpiresAt != 0 && now.After(time.Unix(claims.ExpiresAt, 0).Add(r.cfg.ClockSkew)) {
		return "", ErrInvalidToken
	}
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-r.cfg.ClockSkew)) {
		return "", ErrInvalidToken
	}
	if r.cfg.Issuer != "" && !claims.VerifyIssuer(r.cfg.Issuer, true) {
		return "", ErrInvalidIssuer
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidSubject
	}
	return claims.Subject, nil
}

// Pick decides the identity used for a join. A verified connection identity
// always wins; a claimed one is accepted only when tokens are not verified;
// otherwise the connection id stands in.
func (r *Resolver) Pick(connIdentity, claimed, connID string) string {
	if connIdentity != "" {
		return connIdentity
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" && !r.Verifying() {
		return claimed
	}
	return connID
}
