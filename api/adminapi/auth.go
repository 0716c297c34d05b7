package adminapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeySubject contextKey = "daogov_admin_subject"

// JWTGuard verifies bearer tokens signed with a shared HS256 secret and
// attaches the token subject to the request context. Unlike the teacher's
// multi-role gateway authenticator, the owner-mutate API has exactly one
// permitted persona (the configured owner key), so there is no role claim
// or WebAuthn step-up here.
type JWTGuard struct {
	secret []byte
	issuer string
}

// NewJWTGuard constructs a guard over the given signing secret.
func NewJWTGuard(secret []byte, issuer string) *JWTGuard {
	return &JWTGuard{secret: secret, issuer: issuer}
}

// Middleware rejects requests without a valid bearer token.
func (g *JWTGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return g.secret, nil
		}, jwt.WithIssuer(g.issuer), jwt.WithLeeway(30*time.Second))
		if err != nil || !token.Valid {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeySubject, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Subject returns the authenticated token subject, if any.
func Subject(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeySubject).(string); ok {
		return v
	}
	return ""
}

// IssueToken mints a bearer token for the given subject, used by the CLI to
// bootstrap an operator session against a running daemon.
func IssueToken(secret []byte, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
