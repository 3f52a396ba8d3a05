package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	// keySetTTL is how long fetched keys are trusted before a refresh.
	keySetTTL = 5 * time.Minute
	// keySetRetryAfter spaces out fetches, so tokens carrying unknown kids
	// cannot turn into one outbound request each.
	keySetRetryAfter = 30 * time.Second
)

// jsonWebKey is the subset of RFC 7517 needed for RS256 verification.
type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keySet holds the identity provider's RS256 public keys. The endpoint is
// JWKSURL when configured, otherwise it is discovered from the issuer on the
// first fetch and re-discovered after a failure.
type keySet struct {
	issuer string
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	url         string
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

func newKeySet(cfg JWTConfig) *keySet {
	return &keySet{
		issuer: cfg.Issuer,
		url:    cfg.JWKSURL,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    cfg.logger().With().Str("component", "jwks").Logger(),
		now:    time.Now,
	}
}

// key returns the public key for kid. Fetches happen at most once per
// keySetRetryAfter; when a refresh fails, keys from the last good fetch keep
// working.
func (s *keySet) key(kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k, ok := s.keys[kid]
	if ok && now.Sub(s.fetchedAt) < keySetTTL {
		return k, nil
	}
	if s.lastAttempt.IsZero() || now.Sub(s.lastAttempt) >= keySetRetryAfter {
		s.lastAttempt = now
		if err := s.refresh(); err != nil {
			s.log.Error().Err(err).Str("issuer", s.issuer).Str("url", s.url).Msg("jwks refresh failed")
		}
		k, ok = s.keys[kid]
	}
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return k, nil
}

// refresh must be called with mu held.
func (s *keySet) refresh() error {
	if s.url == "" {
		if s.issuer == "" {
			return fmt.Errorf("neither jwks url nor issuer configured")
		}
		uri, err := s.discover()
		if err != nil {
			return err
		}
		s.url = uri
		s.log.Info().Str("url", uri).Msg("jwks endpoint discovered")
	}

	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := s.getJSON(s.url, &doc); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			s.log.Warn().Err(err).Str("kid", jwk.Kid).Msg("skipping jwk")
			continue
		}
		keys[jwk.Kid] = pub
	}
	s.keys = keys
	s.fetchedAt = s.now()
	return nil
}

func (s *keySet) discover() (string, error) {
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	url := strings.TrimRight(s.issuer, "/") + "/.well-known/openid-configuration"
	if err := s.getJSON(url, &doc); err != nil {
		return "", fmt.Errorf("discover jwks_uri: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("discover jwks_uri: %s has no jwks_uri", url)
	}
	return doc.JWKSURI, nil
}

func (s *keySet) getJSON(url string, v interface{}) error {
	resp, err := s.client.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func (j jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil || len(n) == 0 {
		return nil, fmt.Errorf("bad modulus")
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil || len(e) == 0 {
		return nil, fmt.Errorf("bad exponent")
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// keyfunc resolves RS256 tokens by their kid header.
func (s *keySet) keyfunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}
	return s.key(kid)
}
