package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/Annany2002/odkx-manager/internal/logger"
)

var (
	ErrTokenMalformed = errors.New("malformed basic auth token")
	ErrSealedInvalid  = errors.New("sealed value is invalid or was sealed with a different secret")
	ErrEmptySecret    = errors.New("sealing secret must not be empty")
	customLog         = logger.NewLogger()
)

// --- Basic auth token utilities ---

// EncodeBasicToken returns the base64 "user:pass" token sent as `Authorization: Basic <token>`.
func EncodeBasicToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// DecodeBasicToken splits a stored token back into username and password.
func DecodeBasicToken(token string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", ErrTokenMalformed
	}
	return username, password, nil
}

// BasicAuthHeader formats the Authorization header value for a token.
func BasicAuthHeader(token string) string {
	return "Basic " + token
}

// --- At-rest sealing for remembered credentials ---

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// Sealer encrypts small values (the stored basic token) with a key derived from a secret.
type Sealer struct {
	secret []byte
}

// NewSealer creates a Sealer for the given secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Sealer{secret: []byte(secret)}, nil
}

func (s *Sealer) key(salt []byte) *[keySize]byte {
	derived := argon2.IDKey(s.secret, salt, 1, 64*1024, 2, keySize)
	var key [keySize]byte
	copy(key[:], derived)
	return &key
}

// Seal returns base64(salt | nonce | secretbox(value)).
func (s *Sealer) Seal(value string) (string, error) {
	buf := make([]byte, saltSize+nonceSize)
	if _, err := rand.Read(buf); err != nil {
		customLog.Warnf("Error reading random bytes for sealing: %v", err)
		return "", fmt.Errorf("failed to seal value")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], buf[saltSize:])

	sealed := secretbox.Seal(buf, []byte(value), &nonce, s.key(buf[:saltSize]))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return "", ErrSealedInvalid
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	opened, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, s.key(raw[:saltSize]))
	if !ok {
		return "", ErrSealedInvalid
	}
	return string(opened), nil
}
