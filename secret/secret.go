// Package secret wraps sensitive values so they never leak through logs,
// error messages, or accidental comparisons.
package secret

import (
	"crypto/subtle"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/driftwood/internal/util"
)

// Redacted is what a Secret prints as, everywhere.
const Redacted = "[REDACTED]"

// Secret holds a sensitive byte string in a memguard Enclave (encrypted at
// rest in process memory). Call Destroy() when done; using a destroyed
// Secret returns an error rather than stale material.
type Secret struct {
	enclave   *memguard.Enclave
	destroyed bool
}

var _ fmt.Stringer = (*Secret)(nil)

// New wraps the given bytes. The input slice is wiped before returning, so
// the enclave holds the only remaining copy.
func New(b []byte) *Secret {
	s := &Secret{enclave: memguard.NewEnclave(util.CopyBytes(b))}
	util.WipeBytes(b)
	return s
}

// FromString wraps a string value, NFKD-normalizing it first so that the
// same visible input always wraps the same bytes. The original string is
// garbage-collected normally; callers holding passwords as strings should
// prefer byte-slice plumbing where the transport allows it.
func FromString(v string) *Secret {
	return New([]byte(util.Normalize(v)))
}

// Open returns the plaintext in a locked buffer. The caller must Destroy()
// the buffer as soon as the bytes have been consumed.
func (s *Secret) Open() (*memguard.LockedBuffer, error) {
	if s == nil || s.destroyed || s.enclave == nil {
		return nil, fmt.Errorf("secret has been destroyed")
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening secret enclave: %w", err)
	}
	return buf, nil
}

// Equal compares two secrets in constant time over their plaintext.
func (s *Secret) Equal(other *Secret) (bool, error) {
	a, err := s.Open()
	if err != nil {
		return false, err
	}
	defer a.Destroy()
	b, err := other.Open()
	if err != nil {
		return false, err
	}
	defer b.Destroy()
	return subtle.ConstantTimeCompare(a.Bytes(), b.Bytes()) == 1, nil
}

// Destroy drops the enclave. Safe to call more than once.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	s.destroyed = true
	s.enclave = nil
}

// String implements fmt.Stringer and never reveals the value.
func (s *Secret) String() string { return Redacted }

// GoString keeps %#v output redacted as well.
func (s *Secret) GoString() string { return Redacted }
