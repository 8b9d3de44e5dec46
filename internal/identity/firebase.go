package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultCertsURL publica las claves x509 con las que Firebase firma los ID tokens.
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// FirebaseVerifier valida ID tokens de Firebase Auth (RS256).
//
//   - iss = https://securetoken.google.com/<project>
//   - aud = <project>
//   - sub no vacío (es el uid)
//   - auth_time no en el futuro
type FirebaseVerifier struct {
	projectID string
	keys      *keySource
	leeway    time.Duration
}

// NewFirebaseVerifier crea el verifier. certsURL vacío usa DefaultCertsURL.
func NewFirebaseVerifier(projectID, certsURL string, hc *http.Client) *FirebaseVerifier {
	if certsURL == "" {
		certsURL = DefaultCertsURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &FirebaseVerifier{
		projectID: projectID,
		keys:      newKeySource(certsURL, hc),
		leeway:    30 * time.Second,
	}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrInvalidIdentity)
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			return v.keys.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: empty subject", ErrInvalidIdentity)
	}
	if c.AuthTime > time.Now().Add(v.leeway).Unix() {
		return Identity{}, fmt.Errorf("%w: auth_time in the future", ErrInvalidIdentity)
	}
	return c.identity(), nil
}

// keySource descarga y cachea las claves públicas respetando Cache-Control: max-age.
type keySource struct {
	url   string
	hc    *http.Client
	cache *gocache.Cache
	sf    singleflight.Group
	// minRefetch acota las descargas forzadas por kid desconocido.
	minRefetch time.Duration
}

const (
	keysCacheKey    = "firebase-certs"
	refetchCacheKey = "firebase-certs:fetched"
	// DefaultMinRefetch es el intervalo mínimo entre descargas de claves.
	DefaultMinRefetch = time.Minute
)

func newKeySource(url string, hc *http.Client) *keySource {
	return &keySource{
		url:        url,
		hc:         hc,
		cache:      gocache.New(time.Hour, 10*time.Minute),
		minRefetch: DefaultMinRefetch,
	}
}

func (s *keySource) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}
	if k, ok := keys[kid]; ok {
		return k, nil
	}
	// kid desconocido: puede ser una rotación reciente. Como mucho una descarga
	// por minRefetch, para que kids inventados no golpeen a Google en cada request.
	if s.cache.Add(refetchCacheKey, struct{}{}, s.minRefetch) != nil {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	keys, err = s.load(ctx, true)
	if err != nil {
		return nil, err
	}
	if k, ok := keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("unknown kid %q", kid)
}

func (s *keySource) load(ctx context.Context, force bool) (map[string]*rsa.PublicKey, error) {
	if !force {
		if v, ok := s.cache.Get(keysCacheKey); ok {
			return v.(map[string]*rsa.PublicKey), nil
		}
	}
	v, err, _ := s.sf.Do(keysCacheKey, func() (any, error) {
		keys, ttl, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(keysCacheKey, keys, ttl)
		s.cache.Set(refetchCacheKey, struct{}{}, s.minRefetch)
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*rsa.PublicKey), nil
}

func (s *keySource) fetch(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetch certs: status %d", resp.StatusCode)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, 0, fmt.Errorf("decode certs: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(raw))
	for kid, certPEM := range raw {
		block, _ := pem.Decode([]byte(certPEM))
		if block == nil {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			keys[kid] = pub
		}
	}
	if len(keys) == 0 {
		return nil, 0, errors.New("fetch certs: no usable keys")
	}
	return keys, maxAge(resp.Header.Get("Cache-Control")), nil
}

// maxAge parsea Cache-Control; default 1h.
func maxAge(h string) time.Duration {
	for _, part := range strings.Split(h, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return time.Duration(n) * time.Second
			}
		}
	}
	return time.Hour
}
