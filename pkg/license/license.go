// Package license verifies license keys.
//
// A key is base64(payload) "." base64(signature) where payload is a JSON
// document {"email","plan","exp"} with exp in epoch milliseconds, and the
// signature is an ed25519 signature over the decoded payload bytes.
package license

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leaprest/pkg/core"
)

// DefaultPublicKey is used when no public key is configured. Release builds
// set it with -ldflags "-X github.com/leapstack-labs/leaprest/pkg/license.DefaultPublicKey=...".
var DefaultPublicKey = ""

// ErrMissingPublicKey is returned when a key must be verified but no public
// key is configured.
var ErrMissingPublicKey = errors.New("no license public key configured")

// ErrExpired is returned by Verify for a correctly signed key past its expiry.
var ErrExpired = errors.New("license expired")

// Claims is the signed payload of a license key.
type Claims struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
	// Exp is the expiry in epoch milliseconds. Zero never expires.
	Exp int64 `json:"exp"`
}

// ExpiresAt returns the expiry time, or the zero time when the key never expires.
func (c *Claims) ExpiresAt() time.Time {
	if c.Exp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.Exp)
}

// Expired reports whether the claims are past their expiry at now.
func (c *Claims) Expired(now time.Time) bool {
	return c.Exp != 0 && !now.Before(c.ExpiresAt())
}

// Verifier checks license keys against a public key.
type Verifier struct {
	key ed25519.PublicKey
	now func() time.Time
}

// NewVerifier builds a verifier from a base64 encoded ed25519 public key.
func NewVerifier(publicKey string) (*Verifier, error) {
	if strings.TrimSpace(publicKey) == "" {
		return nil, ErrMissingPublicKey
	}
	raw, err := decode(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return &Verifier{key: ed25519.PublicKey(raw), now: time.Now}, nil
}

// WithClock replaces the time source used for expiry checks.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify parses and checks a license key. Malformed or badly signed keys
// return a *core.LicenseError. An expired key returns its claims together
// with ErrExpired.
func (v *Verifier) Verify(key string) (*Claims, error) {
	payload, sig, err := Parse(key)
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(v.key, payload, sig) {
		return nil, &core.LicenseError{Message: "invalid signature"}
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, &core.LicenseError{Message: "malformed payload", Err: err}
	}
	if claims.Exp < 0 {
		return nil, &core.LicenseError{Message: "malformed payload", Err: errors.New("negative expiry")}
	}
	if claims.Expired(v.now()) {
		return &claims, ErrExpired
	}
	return &claims, nil
}

// Parse splits a key into its decoded payload and signature.
func Parse(key string) (payload, signature []byte, err error) {
	head, tail, ok := strings.Cut(strings.TrimSpace(key), ".")
	if !ok || head == "" || tail == "" {
		return nil, nil, &core.LicenseError{Message: "malformed key", Err: errors.New(`expected "<payload>.<signature>"`)}
	}
	if payload, err = decode(head); err != nil {
		return nil, nil, &core.LicenseError{Message: "malformed payload", Err: err}
	}
	if signature, err = decode(tail); err != nil {
		return nil, nil, &core.LicenseError{Message: "malformed signature", Err: err}
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, nil, &core.LicenseError{Message: "malformed signature", Err: fmt.Errorf("expected %d bytes, got %d", ed25519.SignatureSize, len(signature))}
	}
	return payload, signature, nil
}

// Sign issues a key for claims. Used by tooling and tests.
func Sign(priv ed25519.PrivateKey, claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode claims: %w", err)
	}
	sig := ed25519.Sign(priv, payload)
	return base64.StdEncoding.EncodeToString(payload) + "." + base64.StdEncoding.EncodeToString(sig), nil
}

// decode accepts standard and URL-safe base64, padded or not.
func decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}
