// Package app wires all berea subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in reverse order.
//
// For testing, inject fakes via functional options (WithStore, WithLookup,
// WithTranscriber, WithGenerator). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/calebmoss/berea/internal/anchor"
	"github.com/calebmoss/berea/internal/chunk"
	"github.com/calebmoss/berea/internal/config"
	"github.com/calebmoss/berea/internal/genai"
	"github.com/calebmoss/berea/internal/health"
	"github.com/calebmoss/berea/internal/httpapi"
	"github.com/calebmoss/berea/internal/observe"
	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/internal/stt"
	"github.com/calebmoss/berea/internal/transcript"
	"github.com/calebmoss/berea/internal/verify"
	"github.com/calebmoss/berea/pkg/bibledb"
	"github.com/calebmoss/berea/pkg/store"
	storepg "github.com/calebmoss/berea/pkg/store/postgres"
)

// shutdownTimeout bounds the graceful HTTP drain on exit.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	store     store.Store
	lookup    bibledb.Lookup
	stt       Transcriber
	generator GuideGenerator

	tracker   *chunk.Tracker
	orch      *sermon.Orchestrator
	pipeline  *Pipeline
	segmenter *transcript.Segmenter
	metrics   *observe.Metrics
	server    *http.Server

	// checkers feed the readiness probe.
	checkers []health.Checker

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a persistence layer instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLookup injects a cross-reference lookup instead of connecting to the
// configured database.
func WithLookup(l bibledb.Lookup) Option {
	return func(a *App) { a.lookup = l }
}

// WithTranscriber injects an STT client.
func WithTranscriber(t Transcriber) Option {
	return func(a *App) { a.stt = t }
}

// WithGenerator injects a study guide generator.
func WithGenerator(g GuideGenerator) Option {
	return func(a *App) { a.generator = g }
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initLookup(ctx); err != nil {
		return nil, fmt.Errorf("app: init bible db: %w", err)
	}
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	a.initPipeline()
	a.initServer()

	return a, nil
}

// initStore connects the configured sermon store, defaulting to memory.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("storage.postgres_dsn not set, using in-memory store")
		a.store = store.NewMemoryStore()
		return nil
	}

	pg, err := storepg.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = pg
	a.checkers = append(a.checkers, health.PingChecker("store", pg))
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initLookup connects the verse cross-reference database, defaulting to an
// empty in-memory lookup.
func (a *App) initLookup(ctx context.Context) error {
	if a.lookup != nil {
		return nil
	}
	dsn := a.cfg.BibleDB.PostgresDSN
	if dsn == "" {
		slog.Warn("bibledb.postgres_dsn not set, reference verification will be limited")
		a.lookup = bibledb.NewMemoryLookup()
		return nil
	}

	pg, err := bibledb.NewPostgresLookup(ctx, dsn)
	if err != nil {
		return err
	}
	a.lookup = pg
	a.checkers = append(a.checkers, health.PingChecker("bibledb", pg))
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initProviders creates the STT and LLM clients from config when not injected.
func (a *App) initProviders() error {
	if a.stt == nil && a.cfg.Whisper.ServerURL != "" {
		var opts []stt.Option
		if a.cfg.Whisper.Language != "" {
			opts = append(opts, stt.WithLanguage(a.cfg.Whisper.Language))
		}
		client, err := stt.NewClient(a.cfg.Whisper.ServerURL, opts...)
		if err != nil {
			return fmt.Errorf("create whisper client: %w", err)
		}
		a.stt = client
	}
	if a.stt == nil {
		slog.Warn("no whisper server configured, transcription jobs will fail")
	}

	if a.generator == nil && a.cfg.StudyGuide.APIKey != "" {
		var opts []genai.Option
		if a.cfg.StudyGuide.BaseURL != "" {
			opts = append(opts, genai.WithBaseURL(a.cfg.StudyGuide.BaseURL))
		}
		gen, err := genai.New(a.cfg.StudyGuide.APIKey, a.cfg.StudyGuide.Model, opts...)
		if err != nil {
			return fmt.Errorf("create study guide generator: %w", err)
		}
		a.generator = gen
	}
	if a.generator == nil {
		slog.Warn("no study guide model configured, study guide jobs will fail")
	}
	return nil
}

// initPipeline builds the processing core: tracker, verifier, pipeline and
// orchestrator, bound to each other.
func (a *App) initPipeline() {
	a.tracker = chunk.NewTracker()
	a.segmenter = transcript.NewSegmenter(
		transcript.WithCacheObserver(func(hit bool) {
			ctx := context.Background()
			if hit {
				a.metrics.SegmentCacheHits.Add(ctx, 1)
			} else {
				a.metrics.SegmentCacheMisses.Add(ctx, 1)
			}
		}),
	)

	verifier := verify.NewEngine(a.lookup)

	var pipeOpts []PipelineOption
	if a.cfg.Pipeline.AnchorThreshold > 0 {
		pipeOpts = append(pipeOpts,
			WithResolver(anchor.NewResolver(anchor.WithThreshold(a.cfg.Pipeline.AnchorThreshold))))
	}
	if a.cfg.Storage.AudioDir != "" {
		pipeOpts = append(pipeOpts, WithAudioDir(a.cfg.Storage.AudioDir))
	}
	if a.cfg.Pipeline.UploadConcurrency > 0 {
		pipeOpts = append(pipeOpts, WithUploadConcurrency(a.cfg.Pipeline.UploadConcurrency))
	}
	pipeOpts = append(pipeOpts, WithPipelineMetrics(a.metrics))
	a.pipeline = NewPipeline(a.tracker, a.store, a.stt, a.generator, verifier, pipeOpts...)

	orchOpts := []sermon.Option{
		sermon.WithPersister(a.store),
		sermon.WithTransitionHook(func(track sermon.Track, status sermon.TrackStatus) {
			a.metrics.RecordTrackTransition(context.Background(), string(track), string(status))
		}),
	}
	if a.cfg.Pipeline.JobTimeout > 0 {
		orchOpts = append(orchOpts, sermon.WithJobTimeout(a.cfg.Pipeline.JobTimeout))
	}
	a.orch = sermon.NewOrchestrator(a.pipeline, orchOpts...)
	a.pipeline.Bind(a.orch)
}

// initServer builds the HTTP API server.
func (a *App) initServer() {
	api := httpapi.NewServer(a.store, a.orch, a.tracker, a.segmenter,
		httpapi.WithIngestor(a.pipeline),
		httpapi.WithHealth(health.New(a.checkers...)),
		httpapi.WithMetrics(a.metrics),
	)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler exposes the full HTTP API, mainly for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves the HTTP API until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			errCh <- a.server.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown drains the HTTP server and closes subsystems in reverse order.
// Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		drainCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
