package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"time"
)

// HashScheme names the canonical serialization and hash function used for
// product fingerprints and activity record hashes.
//
// Scheme "sha256-lp-v1":
//   - H is SHA-256, rendered as 64 lowercase hex characters.
//   - Every field is written as "<byte length>:<utf-8 bytes>," and the
//     encodings are concatenated in a fixed order.
//   - Timestamps are UTC, truncated to microseconds, formatted with
//     time.RFC3339Nano.
//   - Integers are base-10 without padding.
//
// Changing any of these rules invalidates every fingerprint and record hash
// already issued, so a new scheme must get a new name and a migration.
const HashScheme = "sha256-lp-v1"

// GenesisPreviousHash is the previous-hash sentinel carried by sequence 0.
const GenesisPreviousHash = ""

// NormalizeTimestamp converts t to the precision stored by every ledger backend.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

type canonicalHasher struct {
	h hash.Hash
}

func newCanonicalHasher() *canonicalHasher {
	return &canonicalHasher{h: sha256.New()}
}

func (c *canonicalHasher) writeString(s string) {
	c.h.Write([]byte(strconv.Itoa(len(s))))
	c.h.Write([]byte{':'})
	c.h.Write([]byte(s))
	c.h.Write([]byte{','})
}

func (c *canonicalHasher) writeInt(n int64) {
	c.writeString(strconv.FormatInt(n, 10))
}

func (c *canonicalHasher) writeTime(t time.Time) {
	c.writeString(NormalizeTimestamp(t).Format(time.RFC3339Nano))
}

func (c *canonicalHasher) sum() string {
	return hex.EncodeToString(c.h.Sum(nil))
}
