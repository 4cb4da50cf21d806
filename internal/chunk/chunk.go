// Package chunk tracks the upload and transcription lifecycle of the audio
// chunks that make up one sermon recording.
//
// Each chunk carries two independent state machines. The upload axis moves
// pending → uploading → succeeded/failed; the transcription axis moves
// pending → running → succeeded/failed. Only the respective external worker
// reports transitions, and a failed chunk retries on its own without touching
// its siblings.
package chunk

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/calebmoss/berea/internal/transcript"
)

// UploadStatus is the state of a chunk's upload axis.
type UploadStatus string

// TranscriptionStatus is the state of a chunk's transcription axis.
type TranscriptionStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadRunning   UploadStatus = "uploading"
	UploadSucceeded UploadStatus = "succeeded"
	UploadFailed    UploadStatus = "failed"

	TranscriptionPending   TranscriptionStatus = "pending"
	TranscriptionRunning   TranscriptionStatus = "running"
	TranscriptionSucceeded TranscriptionStatus = "succeeded"
	TranscriptionFailed    TranscriptionStatus = "failed"
)

// offsetTolerance is the maximum gap or overlap allowed between the end of
// one chunk and the start of the next.
const offsetTolerance = 50 * time.Millisecond

var (
	// ErrNotContiguous is returned when a registered chunk does not line up
	// with its predecessor in index and offset order.
	ErrNotContiguous = errors.New("chunk: not contiguous with previous chunk")

	// ErrUnknownChunk is returned for transitions on a chunk that was never
	// registered.
	ErrUnknownChunk = errors.New("chunk: unknown chunk")

	// ErrInvalidTransition is returned when a reported state change is not
	// legal from the chunk's current state.
	ErrInvalidTransition = errors.New("chunk: invalid state transition")
)

// Chunk is a snapshot of one audio chunk's metadata and lifecycle state.
type Chunk struct {
	SermonID    string        `json:"sermon_id"`
	Index       int           `json:"index"`
	Offset      time.Duration `json:"offset"`
	Duration    time.Duration `json:"duration"`
	ContentHash string        `json:"content_hash,omitempty"`

	UploadStatus   UploadStatus `json:"upload_status"`
	UploadProgress float64      `json:"upload_progress"`
	UploadError    string       `json:"upload_error,omitempty"`

	TranscriptionStatus TranscriptionStatus  `json:"transcription_status"`
	TranscriptionError  string               `json:"transcription_error,omitempty"`
	Fragment            *transcript.Fragment `json:"-"`
}

type chunkKey struct {
	sermonID string
	index    int
}

// Tracker owns the chunk state for all in-flight sermons. Safe for concurrent
// use; every accessor returns copies, never internal pointers.
type Tracker struct {
	mu     sync.RWMutex
	chunks map[chunkKey]*Chunk
	counts map[string]int
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		chunks: make(map[chunkKey]*Chunk),
		counts: make(map[string]int),
	}
}

// Register adds the next chunk of a sermon. Chunks must arrive in index order
// with contiguous offsets: index n starts where index n−1 ended, within a
// small tolerance. Both axes start pending.
func (t *Tracker) Register(sermonID string, index int, offset, duration time.Duration, contentHash string) error {
	if duration <= 0 {
		return fmt.Errorf("chunk: non-positive duration %v: %w", duration, ErrNotContiguous)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if index != t.counts[sermonID] {
		return fmt.Errorf("chunk: index %d, want %d: %w", index, t.counts[sermonID], ErrNotContiguous)
	}
	if index > 0 {
		prev := t.chunks[chunkKey{sermonID, index - 1}]
		gap := offset - (prev.Offset + prev.Duration)
		if gap < -offsetTolerance || gap > offsetTolerance {
			return fmt.Errorf("chunk: offset %v after chunk ending %v: %w",
				offset, prev.Offset+prev.Duration, ErrNotContiguous)
		}
	} else if offset != 0 {
		return fmt.Errorf("chunk: first chunk offset %v, want 0: %w", offset, ErrNotContiguous)
	}

	t.chunks[chunkKey{sermonID, index}] = &Chunk{
		SermonID:            sermonID,
		Index:               index,
		Offset:              offset,
		Duration:            duration,
		ContentHash:         contentHash,
		UploadStatus:        UploadPending,
		TranscriptionStatus: TranscriptionPending,
	}
	t.counts[sermonID]++
	return nil
}

// ── Upload axis ─────────────────────────────────────────────────────────────

// BeginUpload moves a chunk's upload axis to uploading. Legal from pending.
func (t *Tracker) BeginUpload(sermonID string, index int) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.UploadStatus != UploadPending {
			return fmt.Errorf("chunk: begin upload from %q: %w", c.UploadStatus, ErrInvalidTransition)
		}
		c.UploadStatus = UploadRunning
		c.UploadProgress = 0
		return nil
	})
}

// SetUploadProgress records the upload progress fraction in [0, 1]. Legal
// only while uploading.
func (t *Tracker) SetUploadProgress(sermonID string, index int, fraction float64) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.UploadStatus != UploadRunning {
			return fmt.Errorf("chunk: progress in state %q: %w", c.UploadStatus, ErrInvalidTransition)
		}
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		c.UploadProgress = fraction
		return nil
	})
}

// CompleteUpload marks the upload succeeded.
func (t *Tracker) CompleteUpload(sermonID string, index int) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.UploadStatus != UploadRunning {
			return fmt.Errorf("chunk: complete upload from %q: %w", c.UploadStatus, ErrInvalidTransition)
		}
		c.UploadStatus = UploadSucceeded
		c.UploadProgress = 1
		c.UploadError = ""
		return nil
	})
}

// FailUpload marks the upload failed with the worker's error string.
func (t *Tracker) FailUpload(sermonID string, index int, cause string) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.UploadStatus != UploadRunning {
			return fmt.Errorf("chunk: fail upload from %q: %w", c.UploadStatus, ErrInvalidTransition)
		}
		c.UploadStatus = UploadFailed
		c.UploadError = cause
		return nil
	})
}

// RetryUpload resets a failed upload to pending and clears its error. The
// chunk's recorded bytes and content hash are untouched, so the retry
// re-uploads the same payload.
func (t *Tracker) RetryUpload(sermonID string, index int) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.UploadStatus != UploadFailed {
			return fmt.Errorf("chunk: retry upload from %q: %w", c.UploadStatus, ErrInvalidTransition)
		}
		c.UploadStatus = UploadPending
		c.UploadProgress = 0
		c.UploadError = ""
		return nil
	})
}

// ReplaceContent accepts a changed payload for an already registered chunk:
// the content hash is refreshed and the upload axis returns to pending so the
// new bytes are archived in place of the old ones. A transcription result for
// the old payload is dropped with it. Illegal while either axis is running.
func (t *Tracker) ReplaceContent(sermonID string, index int, contentHash string) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.UploadStatus == UploadRunning || c.TranscriptionStatus == TranscriptionRunning {
			return fmt.Errorf("chunk: replace content in state %q/%q: %w",
				c.UploadStatus, c.TranscriptionStatus, ErrInvalidTransition)
		}
		c.ContentHash = contentHash
		c.UploadStatus = UploadPending
		c.UploadProgress = 0
		c.UploadError = ""
		c.TranscriptionStatus = TranscriptionPending
		c.TranscriptionError = ""
		c.Fragment = nil
		return nil
	})
}

// ── Transcription axis ──────────────────────────────────────────────────────

// BeginTranscription moves a chunk's transcription axis to running. Legal
// from pending.
func (t *Tracker) BeginTranscription(sermonID string, index int) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.TranscriptionStatus != TranscriptionPending {
			return fmt.Errorf("chunk: begin transcription from %q: %w", c.TranscriptionStatus, ErrInvalidTransition)
		}
		c.TranscriptionStatus = TranscriptionRunning
		return nil
	})
}

// CompleteTranscription marks transcription succeeded and stores the chunk's
// transcript fragment.
func (t *Tracker) CompleteTranscription(sermonID string, index int, f *transcript.Fragment) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.TranscriptionStatus != TranscriptionRunning {
			return fmt.Errorf("chunk: complete transcription from %q: %w", c.TranscriptionStatus, ErrInvalidTransition)
		}
		c.TranscriptionStatus = TranscriptionSucceeded
		c.TranscriptionError = ""
		c.Fragment = f
		return nil
	})
}

// FailTranscription marks transcription failed with the job's error string.
func (t *Tracker) FailTranscription(sermonID string, index int, cause string) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.TranscriptionStatus != TranscriptionRunning {
			return fmt.Errorf("chunk: fail transcription from %q: %w", c.TranscriptionStatus, ErrInvalidTransition)
		}
		c.TranscriptionStatus = TranscriptionFailed
		c.TranscriptionError = cause
		return nil
	})
}

// RetryTranscription resets a failed transcription to pending and clears its
// error.
func (t *Tracker) RetryTranscription(sermonID string, index int) error {
	return t.mutate(sermonID, index, func(c *Chunk) error {
		if c.TranscriptionStatus != TranscriptionFailed {
			return fmt.Errorf("chunk: retry transcription from %q: %w", c.TranscriptionStatus, ErrInvalidTransition)
		}
		c.TranscriptionStatus = TranscriptionPending
		c.TranscriptionError = ""
		return nil
	})
}

// ── Queries ─────────────────────────────────────────────────────────────────

// Chunks returns copies of the sermon's chunks in index order.
func (t *Tracker) Chunks(sermonID string) []Chunk {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Chunk, 0, t.counts[sermonID])
	for i := 0; i < t.counts[sermonID]; i++ {
		out = append(out, *t.chunks[chunkKey{sermonID, i}])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// UploadProgress returns the duration-weighted aggregate upload fraction for
// a sermon, in [0, 1]. Succeeded chunks count as 1, pending and failed as 0.
func (t *Tracker) UploadProgress(sermonID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total, done time.Duration
	for i := 0; i < t.counts[sermonID]; i++ {
		c := t.chunks[chunkKey{sermonID, i}]
		total += c.Duration
		switch c.UploadStatus {
		case UploadSucceeded:
			done += c.Duration
		case UploadRunning:
			done += time.Duration(float64(c.Duration) * c.UploadProgress)
		}
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// AllTranscribed reports whether every chunk of the sermon has a succeeded
// transcription axis. False for a sermon with no chunks.
func (t *Tracker) AllTranscribed(sermonID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.counts[sermonID]
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if t.chunks[chunkKey{sermonID, i}].TranscriptionStatus != TranscriptionSucceeded {
			return false
		}
	}
	return true
}

// Fragments returns the transcript fragments of all succeeded chunks in index
// order, each stamped with its chunk offset, ready for [transcript.Assemble].
func (t *Tracker) Fragments(sermonID string) []transcript.Fragment {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []transcript.Fragment
	for i := 0; i < t.counts[sermonID]; i++ {
		c := t.chunks[chunkKey{sermonID, i}]
		if c.TranscriptionStatus != TranscriptionSucceeded || c.Fragment == nil {
			continue
		}
		f := *c.Fragment
		f.Offset = c.Offset
		out = append(out, f)
	}
	return out
}

// TotalDuration returns the sum of the sermon's chunk durations.
func (t *Tracker) TotalDuration(sermonID string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total time.Duration
	for i := 0; i < t.counts[sermonID]; i++ {
		total += t.chunks[chunkKey{sermonID, i}].Duration
	}
	return total
}

// Forget drops all chunk state for a sermon. Called after the sermon's
// transcript has been assembled and persisted, or on sermon deletion.
func (t *Tracker) Forget(sermonID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < t.counts[sermonID]; i++ {
		delete(t.chunks, chunkKey{sermonID, i})
	}
	delete(t.counts, sermonID)
}

func (t *Tracker) mutate(sermonID string, index int, fn func(*Chunk) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.chunks[chunkKey{sermonID, index}]
	if !ok {
		return fmt.Errorf("chunk: sermon %s index %d: %w", sermonID, index, ErrUnknownChunk)
	}
	return fn(c)
}
