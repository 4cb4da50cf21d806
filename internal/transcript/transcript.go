// Package transcript holds the timestamped transcript model, display
// segmentation, and read-time correction overlays.
//
// A [Transcript] is immutable once assembled: corrections never rewrite the
// stored words, they are layered on at read time as [Overlay] values. Display
// segmentation is a pure function of the word timestamps and text, memoized by
// content hash in a [Segmenter].
package transcript

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Word is a single transcribed word with its absolute position in the
// recording.
type Word struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Overlay replaces the words in the half-open index range [StartWord, EndWord)
// with Replacement at read time. Overlays never overlap.
type Overlay struct {
	StartWord   int    `json:"start_word"`
	EndWord     int    `json:"end_word"`
	Replacement string `json:"replacement"`
}

// Transcript is the full timestamped transcript of one sermon.
type Transcript struct {
	SermonID string    `json:"sermon_id"`
	Text     string    `json:"text"`
	Words    []Word    `json:"words"`
	Overlays []Overlay `json:"overlays,omitempty"`
}

// Fragment is the transcription result for a single audio chunk, with Offset
// giving the chunk's start position in the whole recording. Word timestamps
// inside a fragment are relative to the chunk.
type Fragment struct {
	Offset time.Duration
	Text   string
	Words  []Word
}

// Assemble merges per-chunk fragments (already in chunk-index order) into one
// transcript, shifting each fragment's word timestamps by its chunk offset.
func Assemble(sermonID string, fragments []Fragment) *Transcript {
	t := &Transcript{SermonID: sermonID}
	var parts []string
	for _, f := range fragments {
		text := strings.TrimSpace(f.Text)
		if text != "" {
			parts = append(parts, text)
		}
		for _, w := range f.Words {
			t.Words = append(t.Words, Word{
				Text:  w.Text,
				Start: f.Offset + w.Start,
				End:   f.Offset + w.End,
			})
		}
	}
	t.Text = strings.Join(parts, " ")
	return t
}

// ContentHash returns a hex digest of the transcript's words and text. Two
// transcripts with equal hashes segment identically; the segment cache is
// keyed on this value.
func (t *Transcript) ContentHash() string {
	h := blake3.New()
	h.WriteString(t.Text)
	var buf [8]byte
	for _, w := range t.Words {
		h.WriteString("\x1f")
		h.WriteString(w.Text)
		binary.LittleEndian.PutUint64(buf[:], uint64(w.Start))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(w.End))
		h.Write(buf[:])
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// CorrectedRange renders the words in [start, end) with overlays applied in
// index order. The stored transcript is not modified. Overlays fully inside
// the range substitute their replacement text; words covered by an overlay
// that starts before the range are skipped (the replacement belongs to the
// segment that contains the overlay's start).
func (t *Transcript) CorrectedRange(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(t.Words) {
		end = len(t.Words)
	}

	overlays := make([]Overlay, len(t.Overlays))
	copy(overlays, t.Overlays)
	sort.Slice(overlays, func(i, j int) bool { return overlays[i].StartWord < overlays[j].StartWord })

	byStart := make(map[int]Overlay, len(overlays))
	covered := make(map[int]bool)
	for _, o := range overlays {
		byStart[o.StartWord] = o
		for i := o.StartWord + 1; i < o.EndWord; i++ {
			covered[i] = true
		}
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		var piece string
		if o, ok := byStart[i]; ok {
			piece = o.Replacement
		} else if covered[i] {
			continue
		} else {
			piece = t.Words[i].Text
		}
		if piece == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(piece)
	}
	return sb.String()
}

// CorrectedText renders the whole transcript with all overlays applied.
func (t *Transcript) CorrectedText() string {
	return t.CorrectedRange(0, len(t.Words))
}
