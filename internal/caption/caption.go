// Package caption detects Bible references incrementally in live caption
// text during an active recording session.
//
// Detection state is a per-session seen-set of canonical reference ids. It
// lives only as long as the session and is never persisted or shared across
// sessions; the same verse mentioned in tomorrow's sermon is new again.
package caption

import (
	"sync"
	"time"

	"github.com/calebmoss/berea/pkg/bible"
)

// Detection is one newly seen reference in the caption stream.
type Detection struct {
	CanonicalID string          `json:"canonical_id"`
	Display     string          `json:"display"`
	Ref         bible.Reference `json:"ref"`
	DetectedAt  time.Time       `json:"detected_at"`
}

// Session is the detection state for one recording session. Safe for
// concurrent use; discard the whole value when the session ends.
type Session struct {
	now func() time.Time

	mu   sync.Mutex
	seen map[string]bool
}

// NewSession creates an empty detection session.
func NewSession() *Session {
	return &Session{
		now:  time.Now,
		seen: make(map[string]bool),
	}
}

// ScanNew scans finalized caption text and returns only references whose
// canonical id has not been emitted in this session, marking each emitted id
// as seen immediately. Re-scanning the same or a superset text yields nothing
// new.
func (s *Session) ScanNew(text string) []Detection {
	spans := bible.Scan(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Detection
	for _, sp := range spans {
		id := sp.Ref.CanonicalID()
		if s.seen[id] {
			continue
		}
		s.seen[id] = true
		out = append(out, Detection{
			CanonicalID: id,
			Display:     sp.Ref.String(),
			Ref:         sp.Ref,
			DetectedAt:  s.now(),
		})
	}
	return out
}

// Spans returns every parseable reference span in text for UI highlighting.
// Pure: it neither reads nor mutates the session's seen-set.
func (s *Session) Spans(text string) []bible.Span {
	return bible.Scan(text)
}
