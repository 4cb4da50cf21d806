// Package bibledb exposes the read-only cross-reference and insight lookup
// services used to verify and enrich suggested Bible references.
//
// Verse identity throughout is the canonical "book.chapter.verse" form
// produced by [github.com/calebmoss/berea/pkg/bible.Reference.CanonicalID].
package bibledb

import (
	"context"
)

// CrossReference is one directed edge in the cross-reference graph, weighted
// by community votes.
type CrossReference struct {
	FromID string `db:"from_id"`
	ToID   string `db:"to_id"`
	Votes  int    `db:"votes"`
}

// Insight is a curated note attached to a single verse.
type Insight struct {
	VerseID string `db:"verse_id"`
	Title   string `db:"title"`
	Body    string `db:"body"`
	Source  string `db:"source"`
}

// Lookup is the read-only verse lookup service. Implementations are safe for
// concurrent use across sermons being processed in parallel.
type Lookup interface {
	// OutgoingIDs returns the canonical ids referenced from fromID, ordered
	// by descending vote weight.
	OutgoingIDs(ctx context.Context, fromID string) ([]string, error)

	// IncomingIDs returns the canonical ids that reference toID.
	IncomingIDs(ctx context.Context, toID string) ([]string, error)

	// Insights returns the curated insights for a verse, possibly empty.
	Insights(ctx context.Context, verseID string) ([]Insight, error)
}
