package biometric

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/biogate/biogate/internal/model"
	"golang.org/x/crypto/blake2b"
)

// IntegrityVerifier detects unauthorized modification of stored templates by
// recomputing a keyed digest over embedding and salt. It protects integrity,
// not confidentiality.
type IntegrityVerifier struct {
	key []byte
}

// NewIntegrityVerifier creates a verifier with the given MAC key.
// The key must be non-empty and at most 64 bytes (blake2b key limit).
func NewIntegrityVerifier(key []byte) (*IntegrityVerifier, error) {
	if len(key) == 0 || len(key) > 64 {
		return nil, fmt.Errorf("integrity key must be 1-64 bytes, got %d", len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &IntegrityVerifier{key: k}, nil
}

// Digest computes the keyed digest over the embedding and salt.
func (v *IntegrityVerifier) Digest(embedding []float64, salt string) string {
	h, _ := blake2b.New256(v.key)
	h.Write([]byte(salt))
	var buf [8]byte
	for _, f := range embedding {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the digest for the template and compares it to the
// persisted one. A mismatch signals tampering, not an authentication failure.
func (v *IntegrityVerifier) Verify(t *model.BiometricTemplate) bool {
	expected := v.Digest(t.Embedding, t.Salt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(t.IntegrityDigest)) == 1
}

// NewSalt returns a fresh random salt for a new template.
func NewSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
