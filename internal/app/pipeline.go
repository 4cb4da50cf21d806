package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/calebmoss/berea/internal/anchor"
	"github.com/calebmoss/berea/internal/chunk"
	"github.com/calebmoss/berea/internal/observe"
	"github.com/calebmoss/berea/internal/resilience"
	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/internal/transcript"
	"github.com/calebmoss/berea/internal/verify"
	"github.com/calebmoss/berea/pkg/bible"
	"github.com/calebmoss/berea/pkg/fingerprint"
	"github.com/calebmoss/berea/pkg/store"
	"github.com/calebmoss/berea/pkg/studyguide"
)

// sttAttempts bounds retries of a single chunk transcription when the
// failure is transient.
const sttAttempts = 3

// Transcriber turns one chunk of WAV audio into a timestamped fragment.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (*transcript.Fragment, error)
}

// GuideGenerator produces a draft study guide from the full transcript text.
type GuideGenerator interface {
	Generate(ctx context.Context, sermonID, transcriptText string) (*studyguide.StudyGuide, error)
}

// Pipeline drives a sermon from uploaded chunks to a verified, anchored
// study guide. It implements the orchestrator's job runner on one side and
// the HTTP chunk ingest on the other.
type Pipeline struct {
	tracker   *chunk.Tracker
	driver    *chunk.UploadDriver
	stt       Transcriber
	generator GuideGenerator
	verifier  *verify.Engine
	resolver  *anchor.Resolver
	store     store.Store
	metrics   *observe.Metrics
	log       *slog.Logger

	audioDir          string
	uploadConcurrency int

	// orch is set by Bind after the orchestrator exists; the two reference
	// each other.
	orch *sermon.Orchestrator

	mu    sync.Mutex
	audio map[string]map[int][]byte
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithResolver overrides the default anchor resolver.
func WithResolver(r *anchor.Resolver) PipelineOption {
	return func(p *Pipeline) { p.resolver = r }
}

// WithPipelineMetrics enables metric recording.
func WithPipelineMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPipelineLogger sets the logger. Defaults to [slog.Default].
func WithPipelineLogger(log *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// WithAudioDir sets the directory chunk audio is archived under.
func WithAudioDir(dir string) PipelineOption {
	return func(p *Pipeline) { p.audioDir = dir }
}

// WithUploadConcurrency bounds simultaneous chunk archive writes.
func WithUploadConcurrency(n int) PipelineOption {
	return func(p *Pipeline) { p.uploadConcurrency = n }
}

// NewPipeline wires the processing stages together. Call [Pipeline.Bind]
// with the orchestrator before starting any work.
func NewPipeline(tracker *chunk.Tracker, st store.Store, stt Transcriber, gen GuideGenerator, verifier *verify.Engine, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		tracker:   tracker,
		stt:       stt,
		generator: gen,
		verifier:  verifier,
		resolver:  anchor.NewResolver(),
		store:     st,
		log:       slog.Default(),
		audio:     make(map[string]map[int][]byte),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.audioDir == "" {
		p.audioDir = filepath.Join(os.TempDir(), "berea-audio")
	}

	var driverOpts []chunk.DriverOption
	if p.uploadConcurrency > 0 {
		driverOpts = append(driverOpts, chunk.WithConcurrency(p.uploadConcurrency))
	}
	driverOpts = append(driverOpts, chunk.WithLogger(p.log))
	p.driver = chunk.NewUploadDriver(tracker, uploaderFunc(p.archiveChunk), driverOpts...)
	return p
}

// uploaderFunc adapts a function to the [chunk.Uploader] interface.
type uploaderFunc func(ctx context.Context, c chunk.Chunk) error

func (f uploaderFunc) Upload(ctx context.Context, c chunk.Chunk) error { return f(ctx, c) }

// Bind attaches the orchestrator the pipeline reports completions to.
func (p *Pipeline) Bind(o *sermon.Orchestrator) { p.orch = o }

// ── chunk ingest ────────────────────────────────────────────────────────────

// IngestChunk registers a received chunk, retains its audio for transcription
// and drives the archive upload. Re-sending a chunk with the same content
// hash is idempotent; a changed payload or a failed archive write goes back
// through the upload state machine.
func (p *Pipeline) IngestChunk(ctx context.Context, sermonID string, index int, offset, duration time.Duration, wav []byte) error {
	if _, err := p.orch.Get(sermonID); err != nil {
		return err
	}

	sum := blake3.Sum256(wav)
	contentHash := hex.EncodeToString(sum[:fingerprint.Size])

	existing, known := p.findChunk(sermonID, index)
	switch {
	case !known:
		if err := p.tracker.Register(sermonID, index, offset, duration, contentHash); err != nil {
			return err
		}
	case existing.ContentHash != contentHash:
		// Changed payload for a known index: refresh the hash and send the
		// new bytes back through the upload state machine so the archive is
		// rewritten.
		if err := p.tracker.ReplaceContent(sermonID, index, contentHash); err != nil {
			return err
		}
	case existing.UploadStatus == chunk.UploadSucceeded:
		// Duplicate delivery of an archived chunk.
		return nil
	case existing.UploadStatus == chunk.UploadFailed:
		if err := p.tracker.RetryUpload(sermonID, index); err != nil {
			return err
		}
	}

	p.mu.Lock()
	if p.audio[sermonID] == nil {
		p.audio[sermonID] = make(map[int][]byte)
	}
	p.audio[sermonID][index] = wav
	p.mu.Unlock()

	failed, err := p.driver.UploadPending(ctx, sermonID)
	if err != nil {
		return err
	}
	if failed > 0 {
		p.log.Warn("chunk archive incomplete",
			"sermon_id", sermonID, "failed", failed)
	}

	p.log.Debug("chunk ingested",
		"sermon_id", sermonID, "index", index, "offset", offset,
		"bytes", len(wav), "content_hash", contentHash)
	return nil
}

// archiveChunk writes one chunk's audio to the archive directory; the
// sermon's AudioURL space maps onto these files.
func (p *Pipeline) archiveChunk(_ context.Context, c chunk.Chunk) error {
	p.mu.Lock()
	wav := p.audio[c.SermonID][c.Index]
	p.mu.Unlock()
	if len(wav) == 0 {
		return errors.New("chunk audio is gone")
	}

	dir := filepath.Join(p.audioDir, c.SermonID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("chunk-%05d.wav", c.Index))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return fmt.Errorf("write chunk audio: %w", err)
	}
	return nil
}

func (p *Pipeline) findChunk(sermonID string, index int) (chunk.Chunk, bool) {
	for _, c := range p.tracker.Chunks(sermonID) {
		if c.Index == index {
			return c, true
		}
	}
	return chunk.Chunk{}, false
}

// ── transcription track ─────────────────────────────────────────────────────

// StartTranscription runs the transcription job in the background: every
// uploaded chunk goes through STT, then the fragments are assembled into the
// sermon transcript.
func (p *Pipeline) StartTranscription(ctx context.Context, sm sermon.Sermon) error {
	if p.stt == nil {
		return errors.New("app: no transcriber configured")
	}
	go p.runTranscription(context.WithoutCancel(ctx), sm.ID)
	return nil
}

func (p *Pipeline) runTranscription(ctx context.Context, sermonID string) {
	start := time.Now()
	if err := p.transcribeAll(ctx, sermonID); err != nil {
		p.log.Error("transcription failed", "sermon_id", sermonID, "err", err)
		if ferr := p.orch.FailTranscription(ctx, sermonID, err.Error()); ferr != nil {
			p.log.Error("report transcription failure", "sermon_id", sermonID, "err", ferr)
		}
		return
	}
	if p.metrics != nil {
		p.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err := p.orch.CompleteTranscription(ctx, sermonID); err != nil {
		p.log.Error("report transcription completion", "sermon_id", sermonID, "err", err)
	}
}

func (p *Pipeline) transcribeAll(ctx context.Context, sermonID string) error {
	for _, c := range p.tracker.Chunks(sermonID) {
		if c.TranscriptionStatus == chunk.TranscriptionSucceeded {
			continue
		}
		if c.UploadStatus != chunk.UploadSucceeded {
			return fmt.Errorf("chunk %d is not uploaded", c.Index)
		}
		if c.TranscriptionStatus == chunk.TranscriptionFailed {
			if err := p.tracker.RetryTranscription(sermonID, c.Index); err != nil {
				return err
			}
		}
		if err := p.transcribeChunk(ctx, sermonID, c.Index); err != nil {
			return fmt.Errorf("transcribe chunk %d: %w", c.Index, err)
		}
	}

	if !p.tracker.AllTranscribed(sermonID) {
		return errors.New("not all chunks transcribed")
	}

	t := transcript.Assemble(sermonID, p.tracker.Fragments(sermonID))
	if err := p.store.SaveTranscript(ctx, t); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}

	// Audio is no longer needed once the transcript is durable.
	p.mu.Lock()
	delete(p.audio, sermonID)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) transcribeChunk(ctx context.Context, sermonID string, index int) error {
	p.mu.Lock()
	wav := p.audio[sermonID][index]
	p.mu.Unlock()
	if len(wav) == 0 {
		return errors.New("chunk audio is gone")
	}

	if err := p.tracker.BeginTranscription(sermonID, index); err != nil {
		return err
	}

	var (
		frag *transcript.Fragment
		err  error
	)
	for attempt := 1; attempt <= sttAttempts; attempt++ {
		frag, err = p.stt.Transcribe(ctx, wav)
		if err == nil || !resilience.Retryable(err) {
			break
		}
		p.log.Warn("chunk transcription attempt failed",
			"sermon_id", sermonID, "index", index, "attempt", attempt, "err", err)
	}
	if err != nil {
		if ferr := p.tracker.FailTranscription(sermonID, index, err.Error()); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}
	return p.tracker.CompleteTranscription(sermonID, index, frag)
}

// ── study guide track ───────────────────────────────────────────────────────

// StartStudyGuide runs guide generation in the background: LLM draft,
// reference verification, then anchor resolution against the transcript.
func (p *Pipeline) StartStudyGuide(ctx context.Context, sm sermon.Sermon) error {
	if p.generator == nil {
		return errors.New("app: no study guide generator configured")
	}
	go p.runStudyGuide(context.WithoutCancel(ctx), sm.ID)
	return nil
}

func (p *Pipeline) runStudyGuide(ctx context.Context, sermonID string) {
	if err := p.buildStudyGuide(ctx, sermonID); err != nil {
		p.log.Error("study guide failed", "sermon_id", sermonID, "err", err)
		if ferr := p.orch.FailStudyGuide(ctx, sermonID, err.Error()); ferr != nil {
			p.log.Error("report study guide failure", "sermon_id", sermonID, "err", ferr)
		}
		return
	}
	if err := p.orch.CompleteStudyGuide(ctx, sermonID); err != nil {
		p.log.Error("report study guide completion", "sermon_id", sermonID, "err", err)
	}
}

func (p *Pipeline) buildStudyGuide(ctx context.Context, sermonID string) error {
	t, err := p.store.GetTranscript(ctx, sermonID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	text := t.CorrectedText()

	guide, err := p.generator.Generate(ctx, sermonID, text)
	if err != nil {
		return fmt.Errorf("generate guide: %w", err)
	}

	ids := mentionedIDs(text)
	markMentioned(guide, ids)
	if p.verifier != nil {
		if err := p.verifier.Enrich(ctx, guide, ids); err != nil {
			return fmt.Errorf("verify references: %w", err)
		}
		if p.metrics != nil {
			for _, ref := range guide.SuggestedReferences {
				p.metrics.RecordVerification(ctx, string(ref.Status))
			}
		}
	}
	p.anchorGuide(ctx, guide, t)

	if err := p.store.SaveStudyGuide(ctx, guide); err != nil {
		return fmt.Errorf("save guide: %w", err)
	}
	return nil
}

// mentionedIDs scans the transcript text for spoken verse references.
func mentionedIDs(text string) []string {
	spans := bible.Scan(text)
	seen := make(map[string]bool, len(spans))
	var ids []string
	for _, sp := range spans {
		id := sp.Ref.CanonicalID()
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// markMentioned fills canonical ids on the guide's mentioned references and
// flags the ones the transcript actually contains.
func markMentioned(g *studyguide.StudyGuide, transcriptIDs []string) {
	inTranscript := make(map[string]bool, len(transcriptIDs))
	for _, id := range transcriptIDs {
		inTranscript[id] = true
	}
	for i := range g.MentionedReferences {
		ref := &g.MentionedReferences[i]
		if ref.CanonicalID == "" {
			parsed, err := bible.Parse(ref.Raw)
			if err != nil {
				continue
			}
			ref.CanonicalID = parsed.CanonicalID()
		}
		if inTranscript[ref.CanonicalID] {
			ref.IsMentioned = true
			ref.Status = studyguide.StatusVerified
		}
	}
}

// anchorGuide resolves outline sections, quotes and insights against the
// transcript. Each category is resolved independently; within a category the
// entries are assumed to follow sermon order.
func (p *Pipeline) anchorGuide(ctx context.Context, g *studyguide.StudyGuide, t *transcript.Transcript) {
	var outline []anchor.Anchor
	for i, sec := range g.Outline {
		if sec.AnchorText != "" {
			outline = append(outline, anchor.Anchor{ID: outlineAnchorID(i), Text: sec.AnchorText})
		}
	}
	for _, res := range p.resolver.Resolve(outline, t) {
		p.recordResolution(ctx, res)
		for i := range g.Outline {
			if outlineAnchorID(i) == res.AnchorID && res.Resolved {
				g.Outline[i].Anchored = true
				g.Outline[i].Timestamp = res.Timestamp
				g.Outline[i].Confidence = res.Confidence
			}
		}
	}

	var quotes []anchor.Anchor
	for _, q := range g.Quotes {
		quotes = append(quotes, anchor.Anchor{ID: q.ID, Text: q.Text})
	}
	for _, res := range p.resolver.Resolve(quotes, t) {
		p.recordResolution(ctx, res)
		for i := range g.Quotes {
			if g.Quotes[i].ID == res.AnchorID && res.Resolved {
				g.Quotes[i].Anchored = true
				g.Quotes[i].Timestamp = res.Timestamp
				g.Quotes[i].Confidence = res.Confidence
			}
		}
	}

	var insights []anchor.Anchor
	for _, in := range g.Insights {
		if in.SupportingQuote != "" {
			insights = append(insights, anchor.Anchor{ID: in.ID, Text: in.SupportingQuote})
		}
	}
	for _, res := range p.resolver.Resolve(insights, t) {
		p.recordResolution(ctx, res)
		for i := range g.Insights {
			if g.Insights[i].ID == res.AnchorID && res.Resolved {
				g.Insights[i].Anchored = true
				g.Insights[i].Timestamp = res.Timestamp
				g.Insights[i].Confidence = res.Confidence
			}
		}
	}
}

func (p *Pipeline) recordResolution(ctx context.Context, res anchor.Resolution) {
	if p.metrics == nil {
		return
	}
	if res.Resolved {
		p.metrics.AnchorConfidence.Record(ctx, res.Confidence)
	} else {
		p.metrics.AnchorsUnresolved.Add(ctx, 1)
	}
}

func outlineAnchorID(i int) string {
	return fmt.Sprintf("outline-%d", i)
}
