package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
	"course-subscription/internal/infra/logging"
)

// Authenticator turns a bearer JWT into a model.Credential. The token itself is
// kept so it can be forwarded to the gateway.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

type learnerClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Mint signs a token for userRef. Used by dev tooling and tests.
func (a *Authenticator) Mint(userRef string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := learnerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userRef,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(r *http.Request) (model.Credential, error) {
	hdr := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return model.Credential{}, domain.ErrUnauthenticated
	}
	raw := strings.TrimSpace(hdr[7:])
	claims := &learnerClaims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || strings.TrimSpace(claims.Subject) == "" {
		return model.Credential{}, domain.ErrUnauthenticated
	}
	return model.Credential{UserRef: claims.Subject, Token: raw}, nil
}

// Middleware rejects requests without a valid token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, err := a.Parse(r)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := logging.WithUserID(withCredential(r.Context(), cred), cred.UserRef)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type credKey struct{}

func withCredential(ctx context.Context, c model.Credential) context.Context {
	return context.WithValue(ctx, credKey{}, c)
}

// CredentialFrom returns the caller set by Middleware.
func CredentialFrom(ctx context.Context) (model.Credential, error) {
	c, ok := ctx.Value(credKey{}).(model.Credential)
	if !ok || c.IsZero() {
		return model.Credential{}, errors.New("no credential in context")
	}
	return c, nil
}
