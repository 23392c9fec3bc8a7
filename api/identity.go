package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("api: unauthenticated")

// Role is what the caller is allowed to do beyond their own records.
type Role string

const (
	RoleStudent Role = "student"
	RoleWriter  Role = "writer"
	RoleAdmin   Role = "admin"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller may run administrative actions.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// IdentityResolver extracts the caller from a request. Session management
// lives outside this package; resolvers only read what it issued.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// IdentityFunc adapts a function to IdentityResolver.
type IdentityFunc func(r *http.Request) (Identity, error)

// Resolve implements IdentityResolver.
func (f IdentityFunc) Resolve(r *http.Request) (Identity, error) { return f(r) }

// ──────────────────────────────────────────────────
// JWT bearer tokens
// ──────────────────────────────────────────────────

// Claims is the bearer token payload. Subject carries the user ID.
type Claims struct {
	Role Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTIdentity verifies HMAC-signed bearer tokens.
type JWTIdentity struct {
	secret []byte
	issuer string
}

// NewJWTIdentity returns a resolver for tokens signed with secret. A
// non-empty issuer is enforced.
func NewJWTIdentity(secret []byte, issuer string) *JWTIdentity {
	return &JWTIdentity{secret: secret, issuer: issuer}
}

// Resolve implements IdentityResolver.
func (j *JWTIdentity) Resolve(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Identity{}, ErrUnauthenticated
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	role := claims.Role
	if role == "" {
		role = RoleStudent
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}

// Issue signs a token for userID. It exists for tooling and tests; the
// production issuer is the auth service.
func (j *JWTIdentity) Issue(userID string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// HeaderIdentity trusts X-User-ID and X-User-Role. Use it only behind a
// gateway that sets them.
func HeaderIdentity() IdentityResolver {
	return IdentityFunc(func(r *http.Request) (Identity, error) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			return Identity{}, ErrUnauthenticated
		}
		role := Role(r.Header.Get("X-User-Role"))
		if role == "" {
			role = RoleStudent
		}
		return Identity{UserID: userID, Role: role}, nil
	})
}
