/*
Package commitment generates and verifies the hash commitments that lock
escrowed funds on both chains of a swap.

The same secret is committed under two algorithms, because the two chain
families lock with different hash opcodes: the account-side vault checks a
plain SHA256 digest, while the UTXO-side script checks a HASH160 digest
(RIPEMD160 over SHA256). All parties derive matching lock conditions from
the digest set alone; the raw secret stays with the initiating party.
*/
package commitment

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/ripemd160"
)

// SecretSize is the byte length of a generated secret. 32 bytes gives 256
// bits of entropy; anything brute-forceable lets a watcher invert the hash
// and steal the escrow, so short secrets are rejected outright.
const SecretSize = 32

// MinSecretSize is the smallest secret Verify will even hash.
const MinSecretSize = 16

var (
	ErrInvalidSecret  = errors.New("secret does not match the committed digest set")
	ErrSecretTooShort = errors.New("secret is below the minimum entropy size")
	ErrBadDigestHex   = errors.New("digest is not valid hex of the expected length")
)

// DigestSet is the fixed algorithm-to-digest map shared by both chains.
// Once an order references a digest set it is never mutated.
type DigestSet struct {
	Sha256  [32]byte // account-chain lock condition
	Hash160 [20]byte // UTXO-chain script lock condition
}

// Generate draws a fresh secret from crypto/rand and derives its digest set.
// The secret is returned exactly once to the caller and is never retained.
func Generate() ([]byte, DigestSet, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, DigestSet{}, fmt.Errorf("failed to draw secret: %w", err)
	}
	return secret, Digests(secret), nil
}

// Digests computes the digest set for a given secret.
func Digests(secret []byte) DigestSet {
	sha := sha256.Sum256(secret)

	ripe := ripemd160.New()
	ripe.Write(sha[:])

	var ds DigestSet
	ds.Sha256 = sha
	copy(ds.Hash160[:], ripe.Sum(nil))
	return ds
}

// Verify recomputes every digest from the supplied secret and requires exact
// equality against the set on record. Any mismatch is ErrInvalidSecret.
func Verify(secret []byte, ds DigestSet) error {
	if len(secret) < MinSecretSize {
		return ErrSecretTooShort
	}
	got := Digests(secret)
	if got.Sha256 != ds.Sha256 {
		return ErrInvalidSecret
	}
	if got.Hash160 != ds.Hash160 {
		return ErrInvalidSecret
	}
	return nil
}

// Sha256Hex returns the sha256 digest as a hex string without 0x prefix.
func (ds DigestSet) Sha256Hex() string {
	return hex.EncodeToString(ds.Sha256[:])
}

// Hash160Hex returns the hash160 digest as a hex string without 0x prefix.
func (ds DigestSet) Hash160Hex() string {
	return hex.EncodeToString(ds.Hash160[:])
}

// IsZero reports whether the digest set is entirely unset.
func (ds DigestSet) IsZero() bool {
	return ds.Sha256 == [32]byte{} && ds.Hash160 == [20]byte{}
}

// ParseDigestSet decodes hex digests received at the boundary.
func ParseDigestSet(sha256Hex, hash160Hex string) (DigestSet, error) {
	var ds DigestSet

	shaRaw, err := hex.DecodeString(trim0x(sha256Hex))
	if err != nil || len(shaRaw) != len(ds.Sha256) {
		return DigestSet{}, ErrBadDigestHex
	}
	ripeRaw, err := hex.DecodeString(trim0x(hash160Hex))
	if err != nil || len(ripeRaw) != len(ds.Hash160) {
		return DigestSet{}, ErrBadDigestHex
	}

	copy(ds.Sha256[:], shaRaw)
	copy(ds.Hash160[:], ripeRaw)
	return ds, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Equal compares two digest sets in constant structure (fixed arrays).
func (ds DigestSet) Equal(other DigestSet) bool {
	return bytes.Equal(ds.Sha256[:], other.Sha256[:]) &&
		bytes.Equal(ds.Hash160[:], other.Hash160[:])
}
