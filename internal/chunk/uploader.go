package chunk

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// defaultUploadConcurrency bounds simultaneous chunk uploads per sermon.
const defaultUploadConcurrency = 3

// Uploader pushes one chunk's payload to the remote store. Implementations
// locate the payload by sermon id, index and content hash; the tracker never
// holds audio bytes itself.
type Uploader interface {
	Upload(ctx context.Context, c Chunk) error
}

// UploadDriver runs chunk uploads concurrently against an [Uploader],
// reporting transitions back into the [Tracker]. One logical task per chunk,
// no ordering dependency; a failed chunk is recorded and its siblings keep
// going.
type UploadDriver struct {
	tracker     *Tracker
	uploader    Uploader
	log         *slog.Logger
	concurrency int
}

// DriverOption configures an [UploadDriver].
type DriverOption func(*UploadDriver)

// WithConcurrency bounds the number of simultaneous uploads. Default: 3.
func WithConcurrency(n int) DriverOption {
	return func(d *UploadDriver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets the driver's logger. Default: slog.Default().
func WithLogger(log *slog.Logger) DriverOption {
	return func(d *UploadDriver) { d.log = log }
}

// NewUploadDriver creates a driver over the given tracker and uploader.
func NewUploadDriver(tracker *Tracker, uploader Uploader, opts ...DriverOption) *UploadDriver {
	d := &UploadDriver{
		tracker:     tracker,
		uploader:    uploader,
		log:         slog.Default(),
		concurrency: defaultUploadConcurrency,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// UploadPending uploads every chunk of the sermon whose upload axis is
// pending. It returns the number of chunks that failed; per-chunk errors land
// on the chunks themselves, never abort sibling uploads, and are retryable
// via [Tracker.RetryUpload].
func (d *UploadDriver) UploadPending(ctx context.Context, sermonID string) (failed int, err error) {
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	results := make(chan bool)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ok := range results {
			if !ok {
				failed++
			}
		}
	}()

	for _, c := range d.tracker.Chunks(sermonID) {
		if c.UploadStatus != UploadPending {
			continue
		}
		c := c
		g.Go(func() error {
			results <- d.uploadOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	if ctx.Err() != nil {
		return failed, fmt.Errorf("chunk: upload sermon %s: %w", sermonID, ctx.Err())
	}
	return failed, nil
}

// uploadOne walks one chunk through its upload transitions and reports
// whether it succeeded.
func (d *UploadDriver) uploadOne(ctx context.Context, c Chunk) bool {
	log := d.log.With("sermon_id", c.SermonID, "chunk_index", c.Index)

	if err := d.tracker.BeginUpload(c.SermonID, c.Index); err != nil {
		log.Warn("skipping chunk upload", "err", err)
		return false
	}
	if err := d.uploader.Upload(ctx, c); err != nil {
		if ferr := d.tracker.FailUpload(c.SermonID, c.Index, err.Error()); ferr != nil {
			log.Error("recording upload failure", "err", ferr)
		}
		log.Warn("chunk upload failed", "err", err)
		return false
	}
	if err := d.tracker.CompleteUpload(c.SermonID, c.Index); err != nil {
		log.Error("recording upload completion", "err", err)
		return false
	}
	log.Debug("chunk uploaded", "content_hash", c.ContentHash)
	return true
}
