// Package anchor resolves AI-supplied anchor quotes back onto the timestamped
// transcript.
//
// Generated study-guide entries carry a short verbatim-ish quote ("anchor
// text") marking where in the sermon the entry belongs. The model paraphrases,
// drops filler words, and fixes grammar, so exact substring search fails
// routinely; resolution is approximate by design. An anchor that cannot be
// matched stays unresolved — resolution failure is a quality signal, never an
// error.
package anchor

import (
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/calebmoss/berea/internal/transcript"
)

const (
	// defaultThreshold is the minimum window similarity for a match.
	defaultThreshold = 0.80

	// defaultTolerance widens the candidate windows to anchor length ± this
	// many tokens, absorbing dropped or inserted filler words.
	defaultTolerance = 2
)

// Anchor is one quote to locate, in the narrative order the entries appear in
// the study guide.
type Anchor struct {
	ID   string
	Text string
}

// Resolution is the outcome for one anchor. When Resolved is false the
// timestamp and confidence are meaningless and must not be displayed.
type Resolution struct {
	AnchorID   string
	Resolved   bool
	Timestamp  time.Duration
	Confidence float64

	// wordEnd is the transcript word index just past the matched window,
	// used as the search floor for the next anchor.
	wordEnd int
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithThreshold overrides the minimum similarity score. Default: 0.80.
func WithThreshold(t float64) Option {
	return func(r *Resolver) { r.threshold = t }
}

// WithTolerance overrides the window-size tolerance in tokens. Default: 2.
func WithTolerance(n int) Option {
	return func(r *Resolver) { r.tolerance = n }
}

// Resolver matches anchor texts against transcript token windows.
type Resolver struct {
	threshold float64
	tolerance int
}

// NewResolver creates a Resolver with the supplied options.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		threshold: defaultThreshold,
		tolerance: defaultTolerance,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve locates each anchor in the transcript, in order. Anchors follow the
// sermon's narrative, so each search starts at the floor left by the previous
// resolved anchor; resolved timestamps are therefore non-decreasing. Each
// resolved anchor gets the end timestamp of its best window and the similarity
// score as confidence. The returned slice always has len(anchors) entries.
func (r *Resolver) Resolve(anchors []Anchor, t *transcript.Transcript) []Resolution {
	tokens := make([]string, len(t.Words))
	for i, w := range t.Words {
		tokens[i] = normalizeToken(w.Text)
	}

	out := make([]Resolution, len(anchors))
	floor := 0
	for i, a := range anchors {
		res := r.resolveOne(a, tokens, t.Words, floor)
		if res.Resolved {
			floor = res.wordEnd
		}
		out[i] = res
	}
	return out
}

// resolveOne slides every window of width |anchor| ± tolerance across the
// transcript tokens from the floor onward and keeps the highest-scoring one.
func (r *Resolver) resolveOne(a Anchor, tokens []string, words []transcript.Word, floor int) Resolution {
	res := Resolution{AnchorID: a.ID}

	anchorTokens := tokenize(a.Text)
	if len(anchorTokens) == 0 || floor >= len(tokens) {
		return res
	}
	anchorText := strings.Join(anchorTokens, " ")

	minWidth := len(anchorTokens) - r.tolerance
	if minWidth < 1 {
		minWidth = 1
	}
	maxWidth := len(anchorTokens) + r.tolerance

	bestScore := 0.0
	bestEnd := 0
	for width := minWidth; width <= maxWidth; width++ {
		for start := floor; start+width <= len(tokens); start++ {
			window := strings.Join(tokens[start:start+width], " ")
			score := matchr.JaroWinkler(anchorText, window, false)
			if score > bestScore {
				bestScore = score
				bestEnd = start + width
			}
		}
	}

	if bestScore < r.threshold {
		return res
	}
	res.Resolved = true
	res.Timestamp = words[bestEnd-1].End
	res.Confidence = bestScore
	res.wordEnd = bestEnd
	return res
}

// tokenize splits anchor text into normalized tokens, dropping anything that
// normalizes to the empty string.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := fields[:0]
	for _, f := range fields {
		if t := normalizeToken(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// normalizeToken lowercases a token and strips surrounding punctuation so
// transcription punctuation differences don't depress the score.
func normalizeToken(s string) string {
	s = strings.ToLower(s)
	return strings.TrimFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
