package sermon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calebmoss/berea/internal/sermon"
)

// recordingRunner records dispatches and optionally fails them.
type recordingRunner struct {
	mu             sync.Mutex
	transcriptions []string
	studyGuides    []string
	failDispatch   bool
}

func (r *recordingRunner) StartTranscription(_ context.Context, s sermon.Sermon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDispatch {
		return errors.New("transcription service unavailable")
	}
	r.transcriptions = append(r.transcriptions, s.ID)
	return nil
}

func (r *recordingRunner) StartStudyGuide(_ context.Context, s sermon.Sermon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDispatch {
		return errors.New("generation service unavailable")
	}
	r.studyGuides = append(r.studyGuides, s.ID)
	return nil
}

func newOrchestrator(t *testing.T, opts ...sermon.Option) (*sermon.Orchestrator, *recordingRunner) {
	t.Helper()
	runner := &recordingRunner{}
	o := sermon.NewOrchestrator(runner, opts...)
	if err := o.Register(context.Background(), sermon.Sermon{ID: "s1", Title: "Grace"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return o, runner
}

func TestHappyPath_BothTracksSucceed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, runner := newOrchestrator(t)

	if err := o.StartTranscription(ctx, "s1"); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	s, _ := o.Get("s1")
	if s.TranscriptionStatus != sermon.StatusRunning {
		t.Fatalf("status = %q, want running", s.TranscriptionStatus)
	}

	if err := o.CompleteTranscription(ctx, "s1"); err != nil {
		t.Fatalf("CompleteTranscription: %v", err)
	}

	// Study-guide generation was dispatched automatically.
	runner.mu.Lock()
	guides := len(runner.studyGuides)
	runner.mu.Unlock()
	if guides != 1 {
		t.Fatalf("study guide dispatched %d times, want 1", guides)
	}

	if err := o.CompleteStudyGuide(ctx, "s1"); err != nil {
		t.Fatalf("CompleteStudyGuide: %v", err)
	}
	s, _ = o.Get("s1")
	if !s.IsComplete() {
		t.Errorf("IsComplete = false with statuses %q/%q", s.TranscriptionStatus, s.StudyGuideStatus)
	}
	if !s.NeedsSync {
		t.Error("transitions did not mark the sermon dirty")
	}
}

func TestDegradedView(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, _ := newOrchestrator(t)

	if err := o.StartTranscription(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := o.CompleteTranscription(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := o.FailStudyGuide(ctx, "s1", "model refused"); err != nil {
		t.Fatal(err)
	}

	s, _ := o.Get("s1")
	if s.IsComplete() {
		t.Error("IsComplete = true with failed study guide")
	}
	if !s.CanViewInDegradedMode() {
		t.Errorf("CanViewInDegradedMode = false, statuses %q/%q",
			s.TranscriptionStatus, s.StudyGuideStatus)
	}
	if s.StudyGuideError != "model refused" {
		t.Errorf("StudyGuideError = %q", s.StudyGuideError)
	}
}

func TestRetry_ResetsOnlyFailedTrack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, runner := newOrchestrator(t)

	if err := o.StartTranscription(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := o.CompleteTranscription(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := o.FailStudyGuide(ctx, "s1", "timeout"); err != nil {
		t.Fatal(err)
	}

	if err := o.Retry(ctx, "s1", sermon.TrackStudyGuide); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	s, _ := o.Get("s1")
	if s.TranscriptionStatus != sermon.StatusSucceeded {
		t.Errorf("retry touched the succeeded transcription track: %q", s.TranscriptionStatus)
	}
	if s.StudyGuideStatus != sermon.StatusRunning {
		t.Errorf("study guide status = %q, want running after retry", s.StudyGuideStatus)
	}
	if s.StudyGuideError != "" {
		t.Errorf("retry did not clear the error: %q", s.StudyGuideError)
	}
	runner.mu.Lock()
	guides := len(runner.studyGuides)
	runner.mu.Unlock()
	if guides != 2 {
		t.Errorf("study guide dispatched %d times, want 2", guides)
	}
}

func TestRetry_RequiresFailedTrack(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator(t)
	err := o.Retry(context.Background(), "s1", sermon.TrackTranscription)
	if !errors.Is(err, sermon.ErrInvalidState) {
		t.Errorf("retry of pending track: err = %v, want ErrInvalidState", err)
	}
}

func TestDelete_RefusedWhileProcessing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	o, _ := newOrchestrator(t)

	if err := o.StartTranscription(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := o.Delete(ctx, "s1"); !errors.Is(err, sermon.ErrProcessing) {
		t.Fatalf("Delete while running: err = %v, want ErrProcessing", err)
	}

	if err := o.FailTranscription(ctx, "s1", "gave up"); err != nil {
		t.Fatal(err)
	}
	if err := o.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete after terminal state: %v", err)
	}

	s, _ := o.Get("s1")
	if !s.IsDeleted() {
		t.Error("sermon has no tombstone after delete")
	}
	if !s.NeedsSync {
		t.Error("soft delete did not mark the sermon dirty")
	}

	// Retry after deletion is refused.
	if err := o.Retry(ctx, "s1", sermon.TrackTranscription); !errors.Is(err, sermon.ErrDeleted) {
		t.Errorf("retry of deleted sermon: err = %v, want ErrDeleted", err)
	}
}

func TestDispatchFailure_FailsTrackImmediately(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{failDispatch: true}
	o := sermon.NewOrchestrator(runner)
	if err := o.Register(context.Background(), sermon.Sermon{ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	err := o.StartTranscription(context.Background(), "s1")
	if err == nil {
		t.Fatal("dispatch error not surfaced")
	}
	s, _ := o.Get("s1")
	if s.TranscriptionStatus != sermon.StatusFailed {
		t.Errorf("status = %q, want failed", s.TranscriptionStatus)
	}
	if s.TranscriptionError == "" {
		t.Error("failure carries no error message")
	}
}

func TestJobTimeout(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator(t, sermon.WithJobTimeout(20*time.Millisecond))

	if err := o.StartTranscription(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	s, _ := o.Get("s1")
	if s.TranscriptionStatus != sermon.StatusFailed {
		t.Fatalf("status = %q, want failed after timeout", s.TranscriptionStatus)
	}
	if s.TranscriptionError != "job timed out" {
		t.Errorf("error = %q", s.TranscriptionError)
	}

	// The stale timer must not clobber a later retry.
	if err := o.Retry(context.Background(), "s1", sermon.TrackTranscription); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	s, _ = o.Get("s1")
	if s.TranscriptionStatus != sermon.StatusRunning {
		t.Errorf("status after retry = %q, want running", s.TranscriptionStatus)
	}
}

func TestRegister_ResetsInterruptedRunningTrack(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	o := sermon.NewOrchestrator(runner)
	err := o.Register(context.Background(), sermon.Sermon{
		ID:                  "s1",
		TranscriptionStatus: sermon.StatusRunning,
		StudyGuideStatus:    sermon.StatusPending,
	})
	if err != nil {
		t.Fatal(err)
	}

	s, _ := o.Get("s1")
	if s.TranscriptionStatus != sermon.StatusFailed {
		t.Errorf("restored running track = %q, want failed (retryable)", s.TranscriptionStatus)
	}
}
