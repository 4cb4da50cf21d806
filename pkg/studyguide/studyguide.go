// Package studyguide holds the generated study-guide model and its versioned
// persistence schema.
package studyguide

import (
	"time"
)

// VerificationStatus classifies a suggested reference after enrichment.
type VerificationStatus string

const (
	// StatusVerified: the cross-reference database connects a mentioned or
	// anchor verse to this suggestion.
	StatusVerified VerificationStatus = "verified"

	// StatusPartial: the verse resolves and is structurally valid but no
	// outgoing connection from the sermon's verses was found.
	StatusPartial VerificationStatus = "partial"

	// StatusUnverified: the reference string does not resolve to a canonical
	// verse at all.
	StatusUnverified VerificationStatus = "unverified"

	// StatusUnknown: the lookup service failed or timed out. Distinct from
	// unverified — it says nothing about the reference's validity.
	StatusUnknown VerificationStatus = "unknown"
)

// EnrichmentSource names where supporting evidence for a reference came from.
type EnrichmentSource string

const (
	SourceTranscript EnrichmentSource = "transcript_mention"
	SourceCrossRef   EnrichmentSource = "cross_reference_db"
	SourceInsight    EnrichmentSource = "insight_db"
	SourceAI         EnrichmentSource = "ai_only"
)

// VerseReference is one Bible reference inside a study guide. Status,
// Sources and VerifiedBy are populated only for suggested references.
type VerseReference struct {
	Raw         string             `json:"raw"`
	CanonicalID string             `json:"canonical_id,omitempty"`
	IsMentioned bool               `json:"is_mentioned"`
	Status      VerificationStatus `json:"status,omitempty"`
	Sources     []EnrichmentSource `json:"sources,omitempty"`
	VerifiedBy  []string           `json:"verified_by,omitempty"`
}

// OutlineSection is one section of the sermon outline. Timestamp and
// Confidence are meaningful only when Anchored is true.
type OutlineSection struct {
	Title      string        `json:"title"`
	Summary    string        `json:"summary,omitempty"`
	AnchorText string        `json:"anchor_text,omitempty"`
	Anchored   bool          `json:"anchored"`
	Timestamp  time.Duration `json:"timestamp,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
}

// Quote is a notable quotation lifted from the sermon.
type Quote struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Anchored   bool          `json:"anchored"`
	Timestamp  time.Duration `json:"timestamp,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
}

// Insight is one anchored insight: a titled takeaway with its supporting
// quote from the transcript.
type Insight struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Body            string        `json:"body"`
	SupportingQuote string        `json:"supporting_quote,omitempty"`
	Anchored        bool          `json:"anchored"`
	Timestamp       time.Duration `json:"timestamp,omitempty"`
	Confidence      float64       `json:"confidence,omitempty"`
}

// StudyGuide is the full generated guide for one sermon.
type StudyGuide struct {
	SermonID      string `json:"sermon_id"`
	SchemaVersion int    `json:"schema_version"`

	Summary   string   `json:"summary,omitempty"`
	KeyThemes []string `json:"key_themes,omitempty"`

	Outline             []OutlineSection `json:"outline,omitempty"`
	Quotes              []Quote          `json:"quotes,omitempty"`
	MentionedReferences []VerseReference `json:"mentioned_references,omitempty"`
	SuggestedReferences []VerseReference `json:"suggested_references,omitempty"`
	Insights            []Insight        `json:"insights,omitempty"`
}

// DedupSuggested removes suggested references whose canonical id repeats,
// keeping the first occurrence. References without a canonical id are kept
// as-is; their raw strings carry no stable identity to collide on.
func (g *StudyGuide) DedupSuggested() {
	seen := make(map[string]bool, len(g.SuggestedReferences))
	kept := g.SuggestedReferences[:0]
	for _, r := range g.SuggestedReferences {
		if r.CanonicalID != "" {
			if seen[r.CanonicalID] {
				continue
			}
			seen[r.CanonicalID] = true
		}
		kept = append(kept, r)
	}
	g.SuggestedReferences = kept
}
