package transcript

import (
	"strings"
	"sync"
	"time"
)

const (
	// defaultTargetDuration closes a display segment once this much time has
	// elapsed since the segment's first word, regardless of punctuation.
	defaultTargetDuration = 12 * time.Second

	// defaultMinBreak is the minimum elapsed time before sentence-terminal
	// punctuation is allowed to close a segment early.
	defaultMinBreak = 5 * time.Second
)

// DisplaySegment is one caption-sized slice of the transcript. WordStart and
// WordEnd delimit the half-open word-index range [WordStart, WordEnd); Text is
// exactly the space-joined words of that range.
type DisplaySegment struct {
	Text      string        `json:"text"`
	Start     time.Duration `json:"start"`
	End       time.Duration `json:"end"`
	WordStart int           `json:"word_start"`
	WordEnd   int           `json:"word_end"`
}

// SegmenterOption is a functional option for [NewSegmenter].
type SegmenterOption func(*Segmenter)

// WithTargetDuration overrides the hard segment-duration cap. Default: 12s.
func WithTargetDuration(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.target = d }
}

// WithMinBreak overrides the minimum duration before a punctuation break may
// fire. Default: 5s.
func WithMinBreak(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.minBreak = d }
}

// WithCacheObserver installs a callback invoked on every lookup with whether
// it hit the cache. Used to feed cache metrics without coupling the segmenter
// to a metrics backend.
func WithCacheObserver(fn func(hit bool)) SegmenterOption {
	return func(s *Segmenter) { s.observe = fn }
}

// Segmenter computes and caches display segments. Segmentation is a pure
// function of the transcript's word timestamps and text, so results are
// memoized by [Transcript.ContentHash]: a cache entry is recomputed only when
// that hash changes, never per render.
//
// The cache has single-writer-atomic-replace semantics — a full segment slice
// is built and swapped in under the lock, so concurrent readers never observe
// a partially built list. Safe for concurrent use.
type Segmenter struct {
	target   time.Duration
	minBreak time.Duration
	observe  func(hit bool)

	mu    sync.RWMutex
	cache map[string][]DisplaySegment
}

// NewSegmenter creates a Segmenter with the supplied options.
func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		target:   defaultTargetDuration,
		minBreak: defaultMinBreak,
		cache:    make(map[string][]DisplaySegment),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Segments returns the display segments for t, computing them on the first
// call for a given content hash and serving the cached value afterwards.
func (s *Segmenter) Segments(t *Transcript) []DisplaySegment {
	key := t.ContentHash()

	s.mu.RLock()
	segs, ok := s.cache[key]
	s.mu.RUnlock()
	if s.observe != nil {
		s.observe(ok)
	}
	if ok {
		return segs
	}

	segs = s.build(t.Words)

	s.mu.Lock()
	s.cache[key] = segs
	s.mu.Unlock()
	return segs
}

// Invalidate drops the cached segments for the given content hash. Called
// when a transcript is deleted; an edited transcript simply produces a new
// hash.
func (s *Segmenter) Invalidate(contentHash string) {
	s.mu.Lock()
	delete(s.cache, contentHash)
	s.mu.Unlock()
}

// build walks the words in order, closing the current segment when the target
// duration is reached or when a sentence ends after the minimum break
// duration. Every word lands in exactly one segment, in original order.
func (s *Segmenter) build(words []Word) []DisplaySegment {
	if len(words) == 0 {
		return nil
	}

	var segs []DisplaySegment
	segStart := 0

	flush := func(end int) {
		segs = append(segs, DisplaySegment{
			Text:      joinWords(words[segStart:end]),
			Start:     words[segStart].Start,
			End:       words[end-1].End,
			WordStart: segStart,
			WordEnd:   end,
		})
		segStart = end
	}

	for i, w := range words {
		elapsed := w.End - words[segStart].Start
		switch {
		case elapsed >= s.target:
			flush(i + 1)
		case endsSentence(w.Text) && elapsed >= s.minBreak:
			flush(i + 1)
		}
	}
	if segStart < len(words) {
		flush(len(words))
	}
	return segs
}

// endsSentence reports whether a word carries sentence-terminal punctuation,
// ignoring trailing quotes.
func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"'”’)`)
	return strings.HasSuffix(word, ".") ||
		strings.HasSuffix(word, "!") ||
		strings.HasSuffix(word, "?")
}

// joinWords is the canonical segment text: the words of the range joined by
// single spaces.
func joinWords(words []Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}
