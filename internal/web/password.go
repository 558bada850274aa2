package web

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// passwordVerifier keeps only an Argon2id hash of the dashboard
// password so the plain value is not held for the server's lifetime.
type passwordVerifier struct {
	salt [16]byte
	hash []byte
}

func newPasswordVerifier(password string) (*passwordVerifier, error) {
	p := &passwordVerifier{}
	if _, err := rand.Read(p.salt[:]); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	p.hash = p.derive(password)
	return p, nil
}

func (p *passwordVerifier) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt[:], 1, 64*1024, 4, 32)
}

func (p *passwordVerifier) Verify(candidate string) bool {
	return subtle.ConstantTimeCompare(p.derive(candidate), p.hash) == 1
}
