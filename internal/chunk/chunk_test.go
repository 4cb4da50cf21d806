package chunk_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/calebmoss/berea/internal/chunk"
	"github.com/calebmoss/berea/internal/transcript"
)

func registerThree(t *testing.T, tr *chunk.Tracker, sermonID string) {
	t.Helper()
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * 30 * time.Second
		if err := tr.Register(sermonID, i, offset, 30*time.Second, fmt.Sprintf("hash%d", i)); err != nil {
			t.Fatalf("Register(%d): %v", i, err)
		}
	}
}

func TestRegister_Contiguity(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	registerThree(t, tr, "s1")

	tests := []struct {
		name   string
		index  int
		offset time.Duration
	}{
		{"index gap", 5, 90 * time.Second},
		{"index repeat", 2, 90 * time.Second},
		{"offset gap", 3, 95 * time.Second},
		{"offset overlap", 3, 60 * time.Second},
	}
	for _, tt := range tests {
		err := tr.Register("s1", tt.index, tt.offset, 30*time.Second, "h")
		if !errors.Is(err, chunk.ErrNotContiguous) {
			t.Errorf("%s: err = %v, want ErrNotContiguous", tt.name, err)
		}
	}

	// A correctly appended chunk still works afterwards.
	if err := tr.Register("s1", 3, 90*time.Second, 10*time.Second, "h3"); err != nil {
		t.Errorf("valid append rejected: %v", err)
	}
	if got := tr.TotalDuration("s1"); got != 100*time.Second {
		t.Errorf("TotalDuration = %v, want 100s", got)
	}
}

func TestRegister_FirstChunkMustStartAtZero(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	err := tr.Register("s1", 0, 5*time.Second, 30*time.Second, "h0")
	if !errors.Is(err, chunk.ErrNotContiguous) {
		t.Errorf("err = %v, want ErrNotContiguous", err)
	}
}

func TestUploadAxis_Transitions(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	registerThree(t, tr, "s1")

	// Completing before starting is invalid.
	if err := tr.CompleteUpload("s1", 0); !errors.Is(err, chunk.ErrInvalidTransition) {
		t.Errorf("CompleteUpload from pending: err = %v, want ErrInvalidTransition", err)
	}

	if err := tr.BeginUpload("s1", 0); err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	if err := tr.SetUploadProgress("s1", 0, 0.5); err != nil {
		t.Fatalf("SetUploadProgress: %v", err)
	}
	if err := tr.FailUpload("s1", 0, "network unavailable"); err != nil {
		t.Fatalf("FailUpload: %v", err)
	}

	c := tr.Chunks("s1")[0]
	if c.UploadStatus != chunk.UploadFailed || c.UploadError != "network unavailable" {
		t.Errorf("after failure: status %q error %q", c.UploadStatus, c.UploadError)
	}
	// The transcription axis is untouched by upload transitions.
	if c.TranscriptionStatus != chunk.TranscriptionPending {
		t.Errorf("transcription axis moved to %q", c.TranscriptionStatus)
	}

	if err := tr.RetryUpload("s1", 0); err != nil {
		t.Fatalf("RetryUpload: %v", err)
	}
	c = tr.Chunks("s1")[0]
	if c.UploadStatus != chunk.UploadPending || c.UploadError != "" || c.UploadProgress != 0 {
		t.Errorf("after retry: status %q error %q progress %v", c.UploadStatus, c.UploadError, c.UploadProgress)
	}

	// Retry is only legal from failed.
	if err := tr.RetryUpload("s1", 1); !errors.Is(err, chunk.ErrInvalidTransition) {
		t.Errorf("RetryUpload from pending: err = %v, want ErrInvalidTransition", err)
	}
}

func TestReplaceContent_ResetsBothAxes(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	registerThree(t, tr, "s1")

	if err := tr.BeginUpload("s1", 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.CompleteUpload("s1", 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.BeginTranscription("s1", 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.CompleteTranscription("s1", 0, &transcript.Fragment{Text: "old words"}); err != nil {
		t.Fatal(err)
	}

	if err := tr.ReplaceContent("s1", 0, "hash0-v2"); err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	c := tr.Chunks("s1")[0]
	if c.ContentHash != "hash0-v2" {
		t.Errorf("ContentHash = %q, want %q", c.ContentHash, "hash0-v2")
	}
	if c.UploadStatus != chunk.UploadPending || c.UploadProgress != 0 {
		t.Errorf("upload axis = %q/%v, want pending/0", c.UploadStatus, c.UploadProgress)
	}
	if c.TranscriptionStatus != chunk.TranscriptionPending || c.Fragment != nil {
		t.Errorf("transcription axis = %q fragment %v, want pending/nil", c.TranscriptionStatus, c.Fragment)
	}

	// Siblings keep their state.
	if got := tr.Chunks("s1")[1].ContentHash; got != "hash1" {
		t.Errorf("sibling hash = %q, want hash1", got)
	}

	// Replacement is refused mid-upload.
	if err := tr.BeginUpload("s1", 1); err != nil {
		t.Fatal(err)
	}
	if err := tr.ReplaceContent("s1", 1, "hash1-v2"); !errors.Is(err, chunk.ErrInvalidTransition) {
		t.Errorf("ReplaceContent while uploading: err = %v, want ErrInvalidTransition", err)
	}
}

func TestTranscriptionAxis_FragmentsInOrder(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	registerThree(t, tr, "s1")

	// Chunks finish transcription out of order.
	for _, i := range []int{2, 0, 1} {
		if err := tr.BeginTranscription("s1", i); err != nil {
			t.Fatalf("BeginTranscription(%d): %v", i, err)
		}
		f := &transcript.Fragment{Text: fmt.Sprintf("part %d", i)}
		if err := tr.CompleteTranscription("s1", i, f); err != nil {
			t.Fatalf("CompleteTranscription(%d): %v", i, err)
		}
	}

	if !tr.AllTranscribed("s1") {
		t.Error("AllTranscribed = false, want true")
	}
	frags := tr.Fragments("s1")
	if len(frags) != 3 {
		t.Fatalf("got %d fragments, want 3", len(frags))
	}
	for i, f := range frags {
		if want := fmt.Sprintf("part %d", i); f.Text != want {
			t.Errorf("fragment %d text = %q, want %q", i, f.Text, want)
		}
		if want := time.Duration(i) * 30 * time.Second; f.Offset != want {
			t.Errorf("fragment %d offset = %v, want %v", i, f.Offset, want)
		}
	}
}

func TestAllTranscribed_EmptySermon(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	if tr.AllTranscribed("nope") {
		t.Error("sermon with no chunks reported fully transcribed")
	}
}

func TestUploadProgress_Aggregate(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	registerThree(t, tr, "s1")

	if err := tr.BeginUpload("s1", 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.CompleteUpload("s1", 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.BeginUpload("s1", 1); err != nil {
		t.Fatal(err)
	}
	if err := tr.SetUploadProgress("s1", 1, 0.5); err != nil {
		t.Fatal(err)
	}

	// One of three equal chunks done, one half done: 0.5 overall.
	got := tr.UploadProgress("s1")
	if got < 0.49 || got > 0.51 {
		t.Errorf("UploadProgress = %v, want ~0.5", got)
	}
}

func TestUnknownChunk(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	if err := tr.BeginUpload("s1", 0); !errors.Is(err, chunk.ErrUnknownChunk) {
		t.Errorf("err = %v, want ErrUnknownChunk", err)
	}
}

// flakyUploader fails the chunk indexes listed in failIndexes once, then
// succeeds on retry.
type flakyUploader struct {
	mu          sync.Mutex
	failIndexes map[int]bool
	calls       []int
}

func (u *flakyUploader) Upload(_ context.Context, c chunk.Chunk) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, c.Index)
	if u.failIndexes[c.Index] {
		delete(u.failIndexes, c.Index)
		return errors.New("connection reset")
	}
	return nil
}

func TestUploadPending_FailureDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()

	tr := chunk.NewTracker()
	registerThree(t, tr, "s1")

	up := &flakyUploader{failIndexes: map[int]bool{1: true}}
	driver := chunk.NewUploadDriver(tr, up)

	failed, err := driver.UploadPending(context.Background(), "s1")
	if err != nil {
		t.Fatalf("UploadPending: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}

	chunks := tr.Chunks("s1")
	if chunks[0].UploadStatus != chunk.UploadSucceeded || chunks[2].UploadStatus != chunk.UploadSucceeded {
		t.Errorf("sibling statuses = %q, %q, want both succeeded",
			chunks[0].UploadStatus, chunks[2].UploadStatus)
	}
	if chunks[1].UploadStatus != chunk.UploadFailed {
		t.Errorf("failed chunk status = %q, want failed", chunks[1].UploadStatus)
	}

	// Retry re-uploads only the failed chunk.
	if err := tr.RetryUpload("s1", 1); err != nil {
		t.Fatalf("RetryUpload: %v", err)
	}
	failed, err = driver.UploadPending(context.Background(), "s1")
	if err != nil || failed != 0 {
		t.Fatalf("retry round: failed = %d, err = %v", failed, err)
	}
	if got := tr.Chunks("s1")[1].UploadStatus; got != chunk.UploadSucceeded {
		t.Errorf("retried chunk status = %q, want succeeded", got)
	}

	up.mu.Lock()
	totalCalls := len(up.calls)
	up.mu.Unlock()
	if totalCalls != 4 {
		t.Errorf("uploader called %d times, want 4 (3 initial + 1 retry)", totalCalls)
	}
}
