package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/jmcleod/driftwood/internal/util"
	"github.com/jmcleod/driftwood/secret"
)

// Argon2idParams are the cost parameters for the password KDF.
type Argon2idParams struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2idParams returns the interactive-login cost profile.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

const saltLen = 16

// Verifier derives and checks password hashes. The concrete Hasher runs
// Argon2id; tests substitute a fixed-cost implementation.
type Verifier interface {
	// Derive hashes a password for storage.
	Derive(password *secret.Secret) (string, error)
	// Verify checks password against an encoded hash. needsRehash is true
	// when the hash was produced with weaker parameters than current.
	Verify(password *secret.Secret, encoded string) (ok bool, needsRehash bool, err error)
	// VerifyDummy runs the full KDF against a fixed dummy hash and always
	// fails. Called on the user-not-found path so its wall-clock cost is
	// indistinguishable from a real verification.
	VerifyDummy(password *secret.Secret) error
}

// Hasher is the Argon2id Verifier.
type Hasher struct {
	params Argon2idParams

	dummyOnce sync.Once
	dummy     string
	dummyErr  error
}

var _ Verifier = (*Hasher)(nil)

func NewHasher(params Argon2idParams) *Hasher {
	return &Hasher{params: params}
}

// Derive hashes the password and returns the encoded form:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
//
// Salt and key are base64 without padding.
func (h *Hasher) Derive(password *secret.Secret) (string, error) {
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return "", fmt.Errorf("generating password salt: %w", err)
	}
	key, err := h.derive(password, salt, h.params)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(key)
	return encodeHash(h.params, salt, key), nil
}

func (h *Hasher) Verify(password *secret.Secret, encoded string) (bool, bool, error) {
	params, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, false, err
	}
	got, err := h.derive(password, salt, params)
	if err != nil {
		return false, false, err
	}
	defer util.WipeBytes(got)
	ok := subtle.ConstantTimeCompare(got, want) == 1
	return ok, ok && params != h.params, nil
}

func (h *Hasher) VerifyDummy(password *secret.Secret) error {
	dummy, err := h.dummyHash()
	if err != nil {
		return err
	}
	// Result intentionally discarded; only the cost matters.
	_, _, err = h.Verify(password, dummy)
	return err
}

// dummyHash lazily derives one fixed hash per Hasher so the not-found
// branch has a real hash to verify against. Lazy so that processes that
// never authenticate (maintenance commands) skip the KDF cost.
func (h *Hasher) dummyHash() (string, error) {
	h.dummyOnce.Do(func() {
		s := secret.FromString("driftwood-dummy-verification-value")
		defer s.Destroy()
		h.dummy, h.dummyErr = h.Derive(s)
	})
	return h.dummy, h.dummyErr
}

func (h *Hasher) derive(password *secret.Secret, salt []byte, params Argon2idParams) ([]byte, error) {
	buf, err := password.Open()
	if err != nil {
		return nil, fmt.Errorf("opening password: %w", err)
	}
	defer buf.Destroy()
	return argon2.IDKey(buf.Bytes(), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}

func encodeHash(params Argon2idParams, salt, key []byte) string {
	b64 := base64.RawStdEncoding.EncodeToString
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.MemoryKiB, params.Time, params.Parallelism, b64(salt), b64(key))
}

func decodeHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	var params Argon2idParams
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, fmt.Errorf("malformed password hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("malformed password hash version")
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Time, &params.Parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("malformed password hash parameters")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("malformed password hash salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("malformed password hash key")
	}
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}
