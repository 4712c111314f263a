// Package tokens issues and verifies HS256 access tokens carrying principal
// claims (sub, roles, references).
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/contentd/contentd/internal/config"
	"github.com/contentd/contentd/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// Claims identify a principal.
type Claims struct {
	Subject    string
	Roles      []string
	References []int64
}

// GenerateAccessToken creates a signed JWT access token for the principal
func GenerateAccessToken(cfg *config.Config, c Claims, ttl time.Duration) (string, error) {
	if cfg.JWT.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	claims := jwt.MapClaims{
		"sub":        c.Subject,
		"roles":      c.Roles,
		"references": c.References,
		"iat":        time.Now().Unix(),
		"exp":        time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

// Verifier checks HS256 signatures and expiry. It satisfies middleware.Verifier.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claimsToken(claims), nil
}

type claimsToken map[string]interface{}

func (t claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
