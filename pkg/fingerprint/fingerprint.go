// Package fingerprint derives deterministic content identities.
//
// Engagement records and migrated study-guide entries are keyed by the hash of
// their normalized content rather than by a random identifier, so re-syncing
// or re-deriving the same content can never create duplicates.
//
// Identity contract: identical normalized inputs always produce identical
// output, and semantically irrelevant differences (letter case, surrounding
// whitespace) never change it. The digest is BLAKE3 truncated to 16 bytes and
// rendered as 32 lowercase hex characters; the truncation length is fixed and
// part of the persisted format.
package fingerprint

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Size is the number of digest bytes kept. The hex form is twice this length.
const Size = 16

// fieldSeparator joins the hash inputs. A unit separator cannot appear in
// normalized text fields, so distinct field lists never collide by
// concatenation.
const fieldSeparator = "\x1f"

// New computes the fingerprint for content owned by scopeID (typically a
// sermon or user id) of the given kind (e.g. "highlight", "note"). Each
// content field is trimmed and case-folded before hashing.
func New(scopeID, kind string, fields ...string) string {
	h := blake3.New()
	h.WriteString(scopeID)
	h.WriteString(fieldSeparator)
	h.WriteString(kind)
	for _, f := range fields {
		h.WriteString(fieldSeparator)
		h.WriteString(normalize(f))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:Size])
}

// normalize trims surrounding whitespace and lowercases a content field.
// Internal whitespace is preserved: "grace  is" and "grace is" are different
// content.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
