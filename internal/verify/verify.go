// Package verify classifies and enriches the suggested Bible references of a
// generated study guide against the cross-reference and insight lookup
// services.
//
// Classification is a pure function of (reference, lookup content): re-running
// with an unchanged lookup always yields the same statuses. A lookup outage
// yields the unknown status, never unverified — unknown says the check could
// not run, unverified says the reference itself does not resolve.
package verify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/calebmoss/berea/internal/resilience"
	"github.com/calebmoss/berea/pkg/bible"
	"github.com/calebmoss/berea/pkg/bibledb"
	"github.com/calebmoss/berea/pkg/studyguide"
)

// Engine verifies suggested references. The breaker fronts the lookup service
// so a dead database degrades enrichment instead of stalling it.
type Engine struct {
	lookup  bibledb.Lookup
	breaker *resilience.Breaker
	log     *slog.Logger
}

// Option configures an [Engine].
type Option func(*Engine)

// WithBreaker guards lookup calls with the given circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(e *Engine) { e.breaker = b }
}

// WithLogger sets the engine's logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an Engine over the given lookup service.
func NewEngine(lookup bibledb.Lookup, opts ...Option) *Engine {
	e := &Engine{
		lookup:  lookup,
		breaker: resilience.NewBreaker("bibledb"),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich classifies every suggested reference of the guide in place and
// deduplicates them by canonical id. mentionedIDs are the canonical ids of
// the verses actually mentioned in the transcript or used as anchors; they
// are the starting points for outgoing cross-reference checks.
func (e *Engine) Enrich(ctx context.Context, g *studyguide.StudyGuide, mentionedIDs []string) error {
	g.DedupSuggested()

	mentioned := make(map[string]bool, len(mentionedIDs))
	for _, id := range mentionedIDs {
		mentioned[id] = true
	}

	// One outgoing-set fetch per mentioned verse, shared across suggestions.
	outgoing, lookupDown := e.outgoingSets(ctx, mentionedIDs)

	for i := range g.SuggestedReferences {
		e.classify(ctx, &g.SuggestedReferences[i], mentioned, outgoing, lookupDown)
	}
	return ctx.Err()
}

// outgoingSets fetches the outgoing cross-reference sets for all mentioned
// verses. A failed fetch poisons classification into unknown for every
// suggestion, since a partial picture could misclassify.
func (e *Engine) outgoingSets(ctx context.Context, mentionedIDs []string) (map[string]map[string]bool, bool) {
	out := make(map[string]map[string]bool, len(mentionedIDs))
	for _, fromID := range mentionedIDs {
		var ids []string
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			var lerr error
			ids, lerr = e.lookup.OutgoingIDs(ctx, fromID)
			return lerr
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				e.log.Warn("cross-reference lookup failed", "from_id", fromID, "err", err)
			}
			return nil, true
		}
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		out[fromID] = set
	}
	return out, false
}

// classify assigns one suggested reference its status, sources and verifying
// verses.
func (e *Engine) classify(ctx context.Context, ref *studyguide.VerseReference,
	mentioned map[string]bool, outgoing map[string]map[string]bool, lookupDown bool) {

	ref.Sources = []studyguide.EnrichmentSource{studyguide.SourceAI}
	ref.VerifiedBy = nil

	// Resolve first: an unparseable reference is unverified no matter what
	// the lookup says.
	if ref.CanonicalID == "" {
		parsed, err := bible.Parse(ref.Raw)
		if err != nil {
			ref.Status = studyguide.StatusUnverified
			return
		}
		ref.CanonicalID = parsed.CanonicalID()
	}

	if mentioned[ref.CanonicalID] {
		ref.IsMentioned = true
		ref.Sources = append(ref.Sources, studyguide.SourceTranscript)
	}

	if lookupDown {
		ref.Status = studyguide.StatusUnknown
		return
	}

	for fromID, set := range outgoing {
		if set[ref.CanonicalID] {
			ref.VerifiedBy = append(ref.VerifiedBy, fromID)
		}
	}
	if len(ref.VerifiedBy) > 0 {
		ref.Status = studyguide.StatusVerified
		ref.Sources = append(ref.Sources, studyguide.SourceCrossRef)
	} else {
		// Incoming-only connections still count as partial support, as does
		// a structurally valid but unconnected verse.
		ref.Status = studyguide.StatusPartial
		if e.hasIncomingFromMentioned(ctx, ref.CanonicalID, mentioned) {
			ref.Sources = append(ref.Sources, studyguide.SourceCrossRef)
		}
	}

	if e.hasInsights(ctx, ref.CanonicalID) {
		ref.Sources = append(ref.Sources, studyguide.SourceInsight)
	}
}

// hasIncomingFromMentioned reports whether any mentioned verse references the
// suggestion in the incoming direction. Lookup failures here only lose a
// source annotation, never a status.
func (e *Engine) hasIncomingFromMentioned(ctx context.Context, id string, mentioned map[string]bool) bool {
	var ids []string
	err := e.breaker.Do(ctx, func(ctx context.Context) error {
		var lerr error
		ids, lerr = e.lookup.IncomingIDs(ctx, id)
		return lerr
	})
	if err != nil {
		return false
	}
	for _, from := range ids {
		if mentioned[from] {
			return true
		}
	}
	return false
}

func (e *Engine) hasInsights(ctx context.Context, id string) bool {
	var insights []bibledb.Insight
	err := e.breaker.Do(ctx, func(ctx context.Context) error {
		var lerr error
		insights, lerr = e.lookup.Insights(ctx, id)
		return lerr
	})
	return err == nil && len(insights) > 0
}
