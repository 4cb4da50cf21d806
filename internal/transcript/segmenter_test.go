package transcript_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/calebmoss/berea/internal/transcript"
)

// evenWords generates n words of 500ms each, back to back.
func evenWords(n int) []transcript.Word {
	words := make([]transcript.Word, n)
	for i := range words {
		words[i] = transcript.Word{
			Text:  fmt.Sprintf("word%d", i),
			Start: time.Duration(i) * 500 * time.Millisecond,
			End:   time.Duration(i+1) * 500 * time.Millisecond,
		}
	}
	return words
}

func transcriptOf(words []transcript.Word) *transcript.Transcript {
	t := &transcript.Transcript{SermonID: "s1", Words: words}
	parts := ""
	for i, w := range words {
		if i > 0 {
			parts += " "
		}
		parts += w.Text
	}
	t.Text = parts
	return t
}

func TestSegments_ExactPartition(t *testing.T) {
	t.Parallel()

	words := evenWords(100) // 50s of speech, no punctuation
	seg := transcript.NewSegmenter()
	segs := seg.Segments(transcriptOf(words))

	if len(segs) == 0 {
		t.Fatal("Segments: got none")
	}

	next := 0
	for i, s := range segs {
		if s.WordStart != next {
			t.Errorf("segment %d starts at word %d, want %d (gap or overlap)", i, s.WordStart, next)
		}
		if s.WordEnd <= s.WordStart {
			t.Errorf("segment %d has empty range [%d, %d)", i, s.WordStart, s.WordEnd)
		}
		if want := joinRange(words, s.WordStart, s.WordEnd); s.Text != want {
			t.Errorf("segment %d text = %q, want space-joined words %q", i, s.Text, want)
		}
		next = s.WordEnd
	}
	if next != len(words) {
		t.Errorf("segments cover %d words, want %d", next, len(words))
	}
}

func TestSegments_TargetDurationCap(t *testing.T) {
	t.Parallel()

	words := evenWords(100)
	seg := transcript.NewSegmenter()
	segs := seg.Segments(transcriptOf(words))

	for i, s := range segs {
		if d := s.End - s.Start; d > 12*time.Second {
			t.Errorf("segment %d duration %v exceeds 12s target without a punctuation break", i, d)
		}
	}
}

func TestSegments_PunctuationBreak(t *testing.T) {
	t.Parallel()

	// Sentence ends at word 13 (6.5s in — past the 5s minimum).
	words := evenWords(30)
	words[13].Text = "amen."
	seg := transcript.NewSegmenter()
	segs := seg.Segments(transcriptOf(words))

	if segs[0].WordEnd != 14 {
		t.Errorf("first segment ends at word %d, want 14 (punctuation break)", segs[0].WordEnd)
	}
}

func TestSegments_EarlyPunctuationIgnored(t *testing.T) {
	t.Parallel()

	// Sentence ends at word 3 (2s in — before the 5s minimum) so no break.
	words := evenWords(30)
	words[3].Text = "yes."
	seg := transcript.NewSegmenter()
	segs := seg.Segments(transcriptOf(words))

	if segs[0].WordEnd == 4 {
		t.Error("segment broke on punctuation before the minimum duration")
	}
}

func TestSegments_FinalRemainder(t *testing.T) {
	t.Parallel()

	words := evenWords(3) // 1.5s total, shorter than any threshold
	seg := transcript.NewSegmenter()
	segs := seg.Segments(transcriptOf(words))

	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if segs[0].WordStart != 0 || segs[0].WordEnd != 3 {
		t.Errorf("remainder segment range [%d, %d), want [0, 3)", segs[0].WordStart, segs[0].WordEnd)
	}
}

func TestSegments_CachedByContentHash(t *testing.T) {
	t.Parallel()

	tr := transcriptOf(evenWords(50))
	seg := transcript.NewSegmenter()

	first := seg.Segments(tr)
	second := seg.Segments(tr)
	if &first[0] != &second[0] {
		t.Error("second call recomputed segments instead of serving the cache")
	}

	// A changed transcript produces a new hash and fresh segments.
	tr2 := transcriptOf(evenWords(51))
	third := seg.Segments(tr2)
	if len(third) == 0 {
		t.Fatal("no segments for modified transcript")
	}
}

func TestCorrectedRange_Overlays(t *testing.T) {
	t.Parallel()

	tr := transcriptOf(evenWords(6))
	tr.Overlays = []transcript.Overlay{
		{StartWord: 1, EndWord: 3, Replacement: "CORRECTED"},
		{StartWord: 5, EndWord: 6, Replacement: "final"},
	}

	got := tr.CorrectedText()
	want := "word0 CORRECTED word3 word4 final"
	if got != want {
		t.Errorf("CorrectedText = %q, want %q", got, want)
	}

	// The stored words are untouched.
	if tr.Words[1].Text != "word1" {
		t.Errorf("overlay mutated stored word: %q", tr.Words[1].Text)
	}
}

func TestAssemble_ShiftsFragmentTimestamps(t *testing.T) {
	t.Parallel()

	fragments := []transcript.Fragment{
		{
			Offset: 0,
			Text:   "first chunk",
			Words: []transcript.Word{
				{Text: "first", Start: 0, End: 400 * time.Millisecond},
				{Text: "chunk", Start: 400 * time.Millisecond, End: time.Second},
			},
		},
		{
			Offset: 30 * time.Second,
			Text:   "second chunk",
			Words: []transcript.Word{
				{Text: "second", Start: 0, End: 500 * time.Millisecond},
				{Text: "chunk", Start: 500 * time.Millisecond, End: time.Second},
			},
		},
	}

	tr := transcript.Assemble("s1", fragments)
	if tr.Text != "first chunk second chunk" {
		t.Errorf("Text = %q", tr.Text)
	}
	if got := tr.Words[2].Start; got != 30*time.Second {
		t.Errorf("third word start = %v, want 30s (fragment offset applied)", got)
	}
}

func joinRange(words []transcript.Word, start, end int) string {
	s := ""
	for i := start; i < end; i++ {
		if i > start {
			s += " "
		}
		s += words[i].Text
	}
	return s
}
