package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCredentialTTL is how long an issued access credential stays valid.
const DefaultCredentialTTL = 30 * 24 * time.Hour

// clockSkew tolerates small clock drift between issuer and verifier.
const clockSkew = 5 * time.Minute

// Credential verification errors.
var (
	ErrCredentialMalformed = errors.New("access credential malformed")
	ErrCredentialInvalid   = errors.New("access credential signature invalid")
	ErrCredentialExpired   = errors.New("access credential expired")
)

// Signer issues and verifies HMAC-signed access credentials of the form
// "<user-id>:<unix-ts>:<base64url signature>". The signature binds the user
// id to the issue time, so a credential cannot be replayed for another user
// or beyond its lifetime.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a Signer. The secret must be at least 32 bytes for
// HMAC-SHA256; config validation enforces that upstream.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	return &Signer{secret: secret, ttl: ttl}
}

// Issue returns a fresh credential for userID.
func (s *Signer) Issue(userID uuid.UUID) string {
	ts := time.Now().Unix()
	return fmt.Sprintf("%s:%d:%s", userID, ts, s.sign(userID, ts))
}

// Verify checks a credential and returns the user id it was issued for.
func (s *Signer) Verify(credential string) (uuid.UUID, error) {
	parts := strings.Split(credential, ":")
	if len(parts) != 3 {
		return uuid.Nil, ErrCredentialMalformed
	}

	userID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, ErrCredentialMalformed
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return uuid.Nil, ErrCredentialMalformed
	}

	if !hmac.Equal([]byte(parts[2]), []byte(s.sign(userID, ts))) {
		return uuid.Nil, ErrCredentialInvalid
	}

	issued := time.Unix(ts, 0)
	now := time.Now()
	if issued.After(now.Add(clockSkew)) || now.After(issued.Add(s.ttl)) {
		return uuid.Nil, ErrCredentialExpired
	}

	return userID, nil
}

func (s *Signer) sign(userID uuid.UUID, ts int64) string {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s:%d", userID, ts)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// NewAnonToken returns a fresh random anonymous token.
func NewAnonToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating anonymous token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
