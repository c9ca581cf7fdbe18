package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const (
	idHexLen          = 16
	fingerprintHexLen = 16
	fingerprintEdge   = 50 // runes taken from each end of the normalized text
)

// ComputeID derives the deterministic chunk identifier: a truncated sha256
// over the text plus the metadata serialized in key-sorted order. Permuting
// metadata iteration order never changes the result.
func ComputeID(text string, metadata map[string]string) string {
	var b strings.Builder
	b.WriteString(text)

	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for k := range metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('\x1f')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(metadata[k])
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:idHexLen]
}

// Fingerprint derives the coarse near-duplicate digest. The text is
// case-folded and whitespace-collapsed, then reduced to its head, tail and
// length before hashing, so trivial restatements collide while the primary
// identifier space stays untouched.
func Fingerprint(text string) string {
	norm := normalize(text)
	runes := []rune(norm)

	head := runes
	if len(head) > fingerprintEdge {
		head = head[:fingerprintEdge]
	}
	tail := runes
	if len(tail) > fingerprintEdge {
		tail = tail[len(tail)-fingerprintEdge:]
	}

	var b strings.Builder
	b.WriteString(string(head))
	b.WriteByte('\x1f')
	b.WriteString(string(tail))
	b.WriteByte('\x1f')
	for n := len(runes); n > 0; n /= 10 {
		b.WriteByte(byte('0' + n%10))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:fingerprintHexLen]
}

// normalize lowercases and collapses runs of whitespace to single spaces.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
