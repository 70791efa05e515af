package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRecord = "rootstore/record/v1"
)

// HashFunc computes the content hash of a normalized record. Event and
// snapshot hashes are produced by one injected HashFunc so deployments can
// swap the algorithm without touching the store.
type HashFunc func(record IRObject) (string, error)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordHash is the default HashFunc: canonical JSON of record, hashed
// under DomainRecord.
func RecordHash(record IRObject) (string, error) {
	canonical, err := MarshalCanonical(record)
	if err != nil {
		return "", fmt.Errorf("RecordHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// MustRecordHash is like RecordHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRecordHash(record IRObject) string {
	h, err := RecordHash(record)
	if err != nil {
		panic(err)
	}
	return h
}
