// internal/app/system/auth/auth.go
//
// Package auth turns a bearer JWT into the caller's identity. The identity
// is the token identifier "issuer|subject" that the identity webhooks use
// when they record principals.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Identity is what the middleware injects into r.Context().
type Identity struct {
	Token   string // issuer|subject
	Issuer  string
	Subject string
}

type ctxKey string

const identityKey ctxKey = "identity"

// CurrentIdentity returns the caller & "found?" flag.
func CurrentIdentity(r *http.Request) (Identity, bool) {
	id, ok := r.Context().Value(identityKey).(Identity)
	return id, ok
}

// TokenOf returns the caller's token identifier, or "" when anonymous.
func TokenOf(r *http.Request) string {
	id, _ := CurrentIdentity(r)
	return id.Token
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Verifier                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// VerifierConfig configures HS256 token verification. Issuer and Audience
// are enforced only when set.
type VerifierConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type Verifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{secret: cfg.Secret, opts: opts}, nil
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Issuer == "" {
		return Identity{}, fmt.Errorf("%w: iss and sub are required", ErrInvalidToken)
	}
	return Identity{
		Token:   claims.Issuer + "|" + claims.Subject,
		Issuer:  claims.Issuer,
		Subject: claims.Subject,
	}, nil
}

func bearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingToken
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(tok), nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadIdentity injects the caller's identity when a bearer token is sent.
// Requests without one continue anonymously; a bad token gets 401.
func (v *Verifier) LoadIdentity(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearer(r)
			if errors.Is(err, ErrMissingToken) {
				next.ServeHTTP(w, r)
				return
			}
			if err == nil {
				var id Identity
				id, err = v.Verify(raw)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}
			logger.Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
			writeUnauthorized(w)
		})
	}
}

// RequireSignedIn rejects anonymous callers with 401.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentIdentity(r); !ok {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="stratadrive"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
