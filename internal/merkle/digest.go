package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// DigestLength is the number of bytes in a digest.
const DigestLength = 32

// ErrBadDigest is returned when text cannot be decoded into a Digest.
var ErrBadDigest = errors.New("merkle: invalid digest")

// Digest is a fixed-size hash value. Convert to bytes with d[:].
type Digest [DigestLength]byte

// HashFunc hashes one leaf or one concatenated pair of child digests.
type HashFunc func(data []byte) Digest

// NewDigest is the default HashFunc: SHA3-256.
func NewDigest(data []byte) Digest {
	return sha3.Sum256(data)
}

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// GoString is used by %#v.
func (d Digest) GoString() string {
	return "<SHA3-256:" + d.String() + ">"
}

// MarshalText encodes the digest as hex.
func (d Digest) MarshalText() ([]byte, error) {
	buf := make([]byte, hex.EncodedLen(DigestLength))
	hex.Encode(buf, d[:])
	return buf, nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(s []byte) error {
	if hex.DecodedLen(len(s)) != DigestLength {
		return fmt.Errorf("%w: length %d", ErrBadDigest, len(s))
	}
	if _, err := hex.Decode(d[:], s); err != nil {
		return fmt.Errorf("%w: %v", ErrBadDigest, err)
	}
	return nil
}

// ParseDigest decodes a hex string into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}
