// Package bible parses free-form scripture references into a structured form
// with canonical verse identifiers.
//
// A canonical identifier has the form "book.chapter.verse" where book is the
// canonical book number 1–66 (Genesis=1, John=43, Revelation=66). The same
// numbering is used by the verse database and the cross-reference tables, so
// identifiers produced here can be handed directly to lookup services.
//
// Two entry points cover the two call patterns in the pipeline:
//
//   - [Parse] turns a single candidate string ("Jn 3:16", "Rom 8:28-30") into
//     a [Reference] or fails with [ErrUnparseable].
//   - [Scan] walks arbitrary prose and returns every parseable reference span.
//     Candidates that fail to parse are dropped, never surfaced as errors.
package bible

import (
	"errors"
	"fmt"
)

// ErrUnparseable is returned by [Parse] when the candidate text does not
// contain a recognizable scripture reference.
var ErrUnparseable = errors.New("bible: unparseable reference")

// Reference is a structured scripture reference. Chapter-only references carry
// Verse 0; ranges carry EndVerse and/or EndChapter. The zero value is invalid.
type Reference struct {
	// Book is the canonical book number (1–66).
	Book int

	// Chapter is the starting chapter. Always ≥ 1 for a parsed reference.
	Chapter int

	// Verse is the starting verse, or 0 for a whole-chapter reference.
	Verse int

	// EndChapter is the final chapter of a cross-chapter range, or 0.
	EndChapter int

	// EndVerse is the final verse of a range, or 0.
	EndVerse int
}

// CanonicalID returns the "book.chapter.verse" identifier for the reference's
// starting verse. Whole-chapter references resolve to verse 1 so that every
// reference owns exactly one identifier for deduplication and lookups.
func (r Reference) CanonicalID() string {
	v := r.Verse
	if v == 0 {
		v = 1
	}
	return fmt.Sprintf("%d.%d.%d", r.Book, r.Chapter, v)
}

// IsRange reports whether the reference spans more than one verse or chapter.
func (r Reference) IsRange() bool {
	return r.EndChapter != 0 || r.EndVerse != 0
}

// String renders the reference in conventional display form, e.g.
// "John 3:16", "Romans 8:28-30", "Genesis 1:31-2:3", "Psalms 23".
func (r Reference) String() string {
	s := BookName(r.Book)
	if r.Chapter == 0 {
		return s
	}
	s += fmt.Sprintf(" %d", r.Chapter)
	if r.Verse != 0 {
		s += fmt.Sprintf(":%d", r.Verse)
	}
	switch {
	case r.EndChapter != 0 && r.EndVerse != 0:
		s += fmt.Sprintf("-%d:%d", r.EndChapter, r.EndVerse)
	case r.EndChapter != 0:
		s += fmt.Sprintf("-%d", r.EndChapter)
	case r.EndVerse != 0:
		s += fmt.Sprintf("-%d", r.EndVerse)
	}
	return s
}
