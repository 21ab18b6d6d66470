package encoding

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// Signer errors.
var (
	ErrInvalidFormat    = errors.New("encoding: invalid format: missing signature")
	ErrSignatureInvalid = errors.New("encoding: signature verification failed")
)

// Signer produces tamper-proof (but visible) handles: base64(data).base64(mac).
// Used for session handles given to the browser so that event posts cannot
// address a session the client was never issued.
type Signer struct {
	key []byte
}

// NewSigner creates a signer with the given key.
// Keys shorter than 32 bytes are stretched with SHA-256.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("encoding: empty signing key")
	}
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}
	return &Signer{key: key}, nil
}

// Sign returns the signed encoding of data.
func (s *Signer) Sign(data []byte) string {
	b64 := base64.RawURLEncoding.EncodeToString(data)
	sig := base64.RawURLEncoding.EncodeToString(s.mac(data))
	return b64 + "." + sig
}

// Verify checks a value produced by Sign and returns the original data.
func (s *Signer) Verify(encoded string) ([]byte, error) {
	parts := strings.SplitN(encoded, ".", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidFormat
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	if !hmac.Equal(sig, s.mac(data)) {
		return nil, ErrSignatureInvalid
	}

	return data, nil
}

// SignString is Sign for string payloads.
func (s *Signer) SignString(v string) string {
	return s.Sign([]byte(v))
}

// VerifyString is Verify for string payloads.
func (s *Signer) VerifyString(encoded string) (string, error) {
	data, err := s.Verify(encoded)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Signer) mac(data []byte) []byte {
	m := hmac.New(sha256.New, s.key)
	m.Write(data)
	return m.Sum(nil)[:16] // 16 bytes = 128 bits
}
