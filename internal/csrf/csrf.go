// Package csrf implements double-submit CSRF token issuance and verification.
// A token/secret pair is issued to the client; only a slow Argon2id hash of the
// pair is held server-side, so possession of the double-submitted values alone
// is never sufficient without the hash recorded for the session.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/guardrail/internal/errors"
)

const (
	// tokenBytes is the entropy of each value; hex-encoded length is double.
	tokenBytes = 32
	// TokenLength is the expected hex-encoded length of tokens and secrets.
	TokenLength = tokenBytes * 2

	// HeaderToken is the request header carrying the client's token copy.
	HeaderToken = "X-CSRF-Token"
	// HeaderSecret is the request header carrying the client's secret copy.
	HeaderSecret = "X-CSRF-Secret"
	// CookieToken is the cookie carrying the double-submitted token.
	CookieToken = "csrf_token"
)

// Pair holds the client-visible CSRF values. The server stores only the hash
// produced by GenerateTokenHash, never the pair itself.
type Pair struct {
	Token  string
	Secret string
}

// Service issues and validates CSRF token pairs.
type Service struct {
	hasher *pwdhash.PasswordHasher
}

// NewService creates a CSRF service using Argon2id hashing with the
// Interactive policy. The hash guards a per-session value, not a long-lived
// credential.
func NewService() *Service {
	hasher, err := pwdhash.New(
		pwdhash.WithPolicy(pwdhash.PolicyInteractive),
	)
	if err != nil {
		// This should never happen with valid policy
		panic(err)
	}

	return &Service{hasher: hasher}
}

// GenerateToken creates a new pair of independently generated
// cryptographically-random values, hex-encoded to 64 characters each.
func (s *Service) GenerateToken() (Pair, error) {
	token, err := randomHex()
	if err != nil {
		return Pair{}, apperrors.Wrap(err, "failed to generate CSRF token")
	}

	secret, err := randomHex()
	if err != nil {
		return Pair{}, apperrors.Wrap(err, "failed to generate CSRF secret")
	}

	return Pair{Token: token, Secret: secret}, nil
}

// GenerateTokenHash produces the salted Argon2id hash of "token:secret" for
// server-side storage. The hash is never sent to the client.
func (s *Service) GenerateTokenHash(token, secret string) (string, error) {
	hash, err := s.hasher.Hash([]byte(token + ":" + secret))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash CSRF pair")
	}
	return hash, nil
}

// ValidateToken recomputes the hash of "token:secret" and compares it with the
// stored hash. The comparison inside Verify is constant time.
func (s *Service) ValidateToken(token, secret, storedHash string) bool {
	if token == "" || secret == "" || storedHash == "" {
		return false
	}
	ok, err := s.hasher.Verify([]byte(token+":"+secret), storedHash)
	if err != nil {
		return false
	}
	return ok
}

// RequestValues carries the CSRF-relevant parts of an inbound request,
// extracted by the transport-agnostic pipeline.
type RequestValues struct {
	Method       string
	HeaderToken  string
	HeaderSecret string
	CookieToken  string
}

// safeMethods never require CSRF validation.
var safeMethods = map[string]struct{}{
	"GET":     {},
	"HEAD":    {},
	"OPTIONS": {},
}

// ValidateRequest applies the double-submit check to a request. Safe methods
// always pass. Unsafe methods require the header token, header secret and
// cookie token to be present, the header and cookie tokens to match, and the
// recomputed hash to match the session-bound stored hash.
func (s *Service) ValidateRequest(v RequestValues, storedHash string) bool {
	if _, safe := safeMethods[v.Method]; safe {
		return true
	}

	if v.HeaderToken == "" || v.HeaderSecret == "" || v.CookieToken == "" {
		return false
	}
	if len(v.HeaderToken) != TokenLength || len(v.HeaderSecret) != TokenLength {
		return false
	}
	if !Equal(v.HeaderToken, v.CookieToken) {
		return false
	}

	return s.ValidateToken(v.HeaderToken, v.HeaderSecret, storedHash)
}

// Equal compares two client-supplied values in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomHex() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
