package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier verifica tokens HS256 firmados con un secreto compartido.
// Pensado para desarrollo local y tests; en producción se usa FirebaseVerifier.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

func NewHMACVerifier(secret []byte, issuer, audience string) *HMACVerifier {
	return &HMACVerifier{secret: secret, issuer: issuer, audience: audience, leeway: 30 * time.Second}
}

func (v *HMACVerifier) Verify(_ context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrInvalidIdentity)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: empty subject", ErrInvalidIdentity)
	}
	return c.identity(), nil
}

// Sign emite un token HS256 para uid. Lo usan los tests y el comando de dev `token`.
func (v *HMACVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Email:    id.Email,
		Name:     id.Name,
		Picture:  id.Picture,
		AuthTime: now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		c.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
