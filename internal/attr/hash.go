package attr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashing. The version suffix enables future
// algorithm migration without ambiguity against old hashes.
const (
	DomainInputs   = "groundwork/inputs/v1"
	DomainSnapshot = "groundwork/snapshot/v1"
)

// hashWithDomain computes a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InputsHash computes the content hash of a node's resolved input
// attributes. Two passes that resolve a node to the same inputs produce the
// same hash, which is what makes the no-op decision cheap: equal hash, equal
// inputs.
func InputsHash(inputs Map) (string, error) {
	canonical, err := MarshalCanonical(inputs)
	if err != nil {
		return "", fmt.Errorf("InputsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInputs, canonical), nil
}

// SnapshotChecksum computes the integrity checksum over a snapshot's
// canonical body. Verified on every read; a mismatch means the stored state
// was corrupted or tampered with.
func SnapshotChecksum(body []byte) string {
	return hashWithDomain(DomainSnapshot, body)
}

// MustInputsHash is like InputsHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInputsHash(inputs Map) string {
	h, err := InputsHash(inputs)
	if err != nil {
		panic(err)
	}
	return h
}
