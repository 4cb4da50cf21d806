package sermon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// defaultJobTimeout bounds how long a dispatched remote job may stay running
// before the track is failed with a retryable timeout.
const defaultJobTimeout = 10 * time.Minute

var (
	// ErrNotFound is returned for operations on an unknown sermon id.
	ErrNotFound = errors.New("sermon: not found")

	// ErrProcessing is returned when deletion is requested while a track is
	// still running. The caller must surface it, never queue the delete.
	ErrProcessing = errors.New("sermon: cannot delete while processing")

	// ErrDeleted is returned for processing operations on a soft-deleted
	// sermon.
	ErrDeleted = errors.New("sermon: deleted")

	// ErrInvalidState is returned when a job callback or retry does not match
	// the track's current status.
	ErrInvalidState = errors.New("sermon: invalid track state")
)

// JobRunner dispatches the two remote jobs. Start calls must return quickly:
// the job runs elsewhere and reports back through the orchestrator's
// Complete/Fail callbacks.
type JobRunner interface {
	StartTranscription(ctx context.Context, s Sermon) error
	StartStudyGuide(ctx context.Context, s Sermon) error
}

// Persister saves sermon state after each transition. Save failures are
// logged and do not roll back the in-memory transition.
type Persister interface {
	SaveSermon(ctx context.Context, s *Sermon) error
}

// Orchestrator owns the per-sermon processing state machines. Transitions:
// pending → running on dispatch, running → succeeded on completion with valid
// output, running → failed on error or timeout. Safe for concurrent use.
type Orchestrator struct {
	runner     JobRunner
	persist    Persister
	log        *slog.Logger
	jobTimeout time.Duration
	now        func() time.Time

	onTransition func(track Track, status TrackStatus)

	mu      sync.Mutex
	sermons map[string]*Sermon
	epochs  map[string]map[Track]int
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithPersister saves sermons through p after every transition.
func WithPersister(p Persister) Option {
	return func(o *Orchestrator) { o.persist = p }
}

// WithLogger sets the orchestrator's logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithJobTimeout overrides the remote-job timeout. Default: 10m.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.jobTimeout = d }
}

// WithTransitionHook installs a callback invoked after every track status
// change, outside the orchestrator lock. Used to feed metrics.
func WithTransitionHook(fn func(track Track, status TrackStatus)) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// NewOrchestrator creates an Orchestrator dispatching jobs through runner.
func NewOrchestrator(runner JobRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:     runner,
		log:        slog.Default(),
		jobTimeout: defaultJobTimeout,
		now:        time.Now,
		sermons:    make(map[string]*Sermon),
		epochs:     make(map[string]map[Track]int),
	}
	for _, op := range opts {
		op(o)
	}
	return o
}

// Register adds a sermon to the orchestrator. Empty track statuses default to
// pending; a sermon restored from storage keeps its persisted statuses, with
// any interrupted running track reset to failed so it is retryable.
func (o *Orchestrator) Register(ctx context.Context, s Sermon) error {
	if s.TranscriptionStatus == "" {
		s.TranscriptionStatus = StatusPending
	}
	if s.StudyGuideStatus == "" {
		s.StudyGuideStatus = StatusPending
	}
	if s.TranscriptionStatus == StatusRunning {
		s.setTrack(TrackTranscription, StatusFailed, "interrupted by restart")
	}
	if s.StudyGuideStatus == StatusRunning {
		s.setTrack(TrackStudyGuide, StatusFailed, "interrupted by restart")
	}

	o.mu.Lock()
	o.sermons[s.ID] = &s
	o.epochs[s.ID] = map[Track]int{}
	o.mu.Unlock()

	o.save(ctx, &s)
	return nil
}

// Get returns a copy of the sermon's current state.
func (o *Orchestrator) Get(id string) (Sermon, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, ok := o.sermons[id]
	if !ok {
		return Sermon{}, fmt.Errorf("sermon: %s: %w", id, ErrNotFound)
	}
	return *s, nil
}

// StartTranscription dispatches the transcription job for a pending sermon.
// A dispatch error fails the track immediately; the caller never blocks on
// the job itself.
func (o *Orchestrator) StartTranscription(ctx context.Context, id string) error {
	return o.dispatch(ctx, id, TrackTranscription)
}

// CompleteTranscription is the transcription job's success callback. It also
// dispatches the study-guide track if that track is still pending.
func (o *Orchestrator) CompleteTranscription(ctx context.Context, id string) error {
	if err := o.finish(ctx, id, TrackTranscription, StatusSucceeded, ""); err != nil {
		return err
	}

	o.mu.Lock()
	s, ok := o.sermons[id]
	startGuide := ok && s.StudyGuideStatus == StatusPending
	o.mu.Unlock()

	if startGuide {
		if err := o.dispatch(ctx, id, TrackStudyGuide); err != nil {
			o.log.Warn("study guide dispatch after transcription", "sermon_id", id, "err", err)
		}
	}
	return nil
}

// FailTranscription is the transcription job's failure callback.
func (o *Orchestrator) FailTranscription(ctx context.Context, id, cause string) error {
	return o.finish(ctx, id, TrackTranscription, StatusFailed, cause)
}

// CompleteStudyGuide is the study-guide job's success callback.
func (o *Orchestrator) CompleteStudyGuide(ctx context.Context, id string) error {
	return o.finish(ctx, id, TrackStudyGuide, StatusSucceeded, "")
}

// FailStudyGuide is the study-guide job's failure callback. The sermon
// remains viewable in degraded mode when transcription already succeeded.
func (o *Orchestrator) FailStudyGuide(ctx context.Context, id, cause string) error {
	return o.finish(ctx, id, TrackStudyGuide, StatusFailed, cause)
}

// Retry resets a failed track to pending, clears its error and re-dispatches
// it. The other track is never touched: retrying a failed study guide keeps
// the succeeded transcription.
func (o *Orchestrator) Retry(ctx context.Context, id string, track Track) error {
	o.mu.Lock()
	s, ok := o.sermons[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("sermon: %s: %w", id, ErrNotFound)
	}
	if s.IsDeleted() {
		o.mu.Unlock()
		return fmt.Errorf("sermon: retry %s: %w", id, ErrDeleted)
	}
	if s.trackStatus(track) != StatusFailed {
		o.mu.Unlock()
		return fmt.Errorf("sermon: retry %s track from %q: %w", track, s.trackStatus(track), ErrInvalidState)
	}
	s.setTrack(track, StatusPending, "")
	o.touch(s)
	snapshot := *s
	o.mu.Unlock()

	o.save(ctx, &snapshot)
	o.log.Info("retrying track", "sermon_id", id, "track", track)
	return o.dispatch(ctx, id, track)
}

// Delete soft-deletes a sermon. Refused with [ErrProcessing] while either
// track is running; the tombstone is a timestamp, local state is kept for the
// sync layer.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	s, ok := o.sermons[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("sermon: %s: %w", id, ErrNotFound)
	}
	if s.Processing() {
		o.mu.Unlock()
		return fmt.Errorf("sermon: %s: %w", id, ErrProcessing)
	}
	now := o.now()
	s.DeletedAt = &now
	o.touch(s)
	snapshot := *s
	o.mu.Unlock()

	o.save(ctx, &snapshot)
	o.log.Info("sermon soft-deleted", "sermon_id", id)
	return nil
}

// dispatch moves a pending track to running, arms the job timeout and starts
// the remote job.
func (o *Orchestrator) dispatch(ctx context.Context, id string, track Track) error {
	o.mu.Lock()
	s, ok := o.sermons[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("sermon: %s: %w", id, ErrNotFound)
	}
	if s.IsDeleted() {
		o.mu.Unlock()
		return fmt.Errorf("sermon: dispatch on %s: %w", id, ErrDeleted)
	}
	if s.trackStatus(track) != StatusPending {
		o.mu.Unlock()
		return fmt.Errorf("sermon: dispatch %s track from %q: %w", track, s.trackStatus(track), ErrInvalidState)
	}
	s.setTrack(track, StatusRunning, "")
	o.touch(s)
	o.epochs[id][track]++
	epoch := o.epochs[id][track]
	snapshot := *s
	o.mu.Unlock()

	o.save(ctx, &snapshot)
	o.notify(track, StatusRunning)
	time.AfterFunc(o.jobTimeout, func() { o.timeoutTrack(id, track, epoch) })

	var err error
	if track == TrackTranscription {
		err = o.runner.StartTranscription(ctx, snapshot)
	} else {
		err = o.runner.StartStudyGuide(ctx, snapshot)
	}
	if err != nil {
		ferr := o.finish(ctx, id, track, StatusFailed, err.Error())
		if ferr != nil {
			o.log.Error("recording dispatch failure", "sermon_id", id, "track", track, "err", ferr)
		}
		return fmt.Errorf("sermon: dispatch %s for %s: %w", track, id, err)
	}
	o.log.Debug("job dispatched", "sermon_id", id, "track", track)
	return nil
}

// finish applies a terminal callback to a running track.
func (o *Orchestrator) finish(ctx context.Context, id string, track Track, status TrackStatus, cause string) error {
	o.mu.Lock()
	s, ok := o.sermons[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("sermon: %s: %w", id, ErrNotFound)
	}
	if s.trackStatus(track) != StatusRunning {
		o.mu.Unlock()
		return fmt.Errorf("sermon: finish %s track from %q: %w", track, s.trackStatus(track), ErrInvalidState)
	}
	s.setTrack(track, status, cause)
	o.touch(s)
	o.epochs[id][track]++ // disarms the pending timeout
	snapshot := *s
	o.mu.Unlock()

	o.save(ctx, &snapshot)
	o.notify(track, status)
	if status == StatusFailed {
		o.log.Warn("track failed", "sermon_id", id, "track", track, "cause", cause)
	} else {
		o.log.Info("track succeeded", "sermon_id", id, "track", track)
	}
	return nil
}

// timeoutTrack fails a track that is still running under the epoch the
// timeout was armed with. A stale timer whose epoch has moved on is a no-op.
func (o *Orchestrator) timeoutTrack(id string, track Track, epoch int) {
	o.mu.Lock()
	s, ok := o.sermons[id]
	if !ok || o.epochs[id][track] != epoch || s.trackStatus(track) != StatusRunning {
		o.mu.Unlock()
		return
	}
	s.setTrack(track, StatusFailed, "job timed out")
	o.touch(s)
	o.epochs[id][track]++
	snapshot := *s
	o.mu.Unlock()

	o.save(context.Background(), &snapshot)
	o.notify(track, StatusFailed)
	o.log.Warn("track timed out", "sermon_id", id, "track", track)
}

// notify invokes the transition hook when one is installed. Callers must not
// hold o.mu.
func (o *Orchestrator) notify(track Track, status TrackStatus) {
	if o.onTransition != nil {
		o.onTransition(track, status)
	}
}

// touch marks the sermon dirty for sync. Callers hold o.mu.
func (o *Orchestrator) touch(s *Sermon) {
	s.NeedsSync = true
	s.UpdatedAt = o.now()
}

// save persists a transition snapshot. Storage failures are reported but the
// in-memory state stands: succeeded state is never corrupted by a save error.
func (o *Orchestrator) save(ctx context.Context, s *Sermon) {
	if o.persist == nil {
		return
	}
	if err := o.persist.SaveSermon(ctx, s); err != nil {
		o.log.Error("persisting sermon state", "sermon_id", s.ID, "err", err)
	}
}
