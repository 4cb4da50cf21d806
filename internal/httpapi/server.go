// Package httpapi exposes the berea REST and websocket API.
//
// The surface covers sermon lifecycle (create, inspect, retry, delete),
// chunked audio ingest, transcript and study guide reads, engagement records,
// the sync endpoints used by clients to push and pull dirty state, and a
// websocket endpoint for live caption verse detection.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calebmoss/berea/internal/chunk"
	"github.com/calebmoss/berea/internal/health"
	"github.com/calebmoss/berea/internal/observe"
	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/internal/transcript"
	"github.com/calebmoss/berea/pkg/store"
)

// Ingestor accepts one uploaded audio chunk and drives it through
// registration, upload bookkeeping and transcription.
type Ingestor interface {
	IngestChunk(ctx context.Context, sermonID string, index int, offset, duration time.Duration, wav []byte) error
}

// Server wires the HTTP handlers to the processing components. Construct
// with [NewServer] and mount via [Server.Handler].
type Server struct {
	store     store.Store
	orch      *sermon.Orchestrator
	ingest    Ingestor
	tracker   *chunk.Tracker
	segmenter *transcript.Segmenter
	health    *health.Handler
	metrics   *observe.Metrics
	log       *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithIngestor sets the chunk ingest pipeline. Without one, chunk uploads
// return 503.
func WithIngestor(in Ingestor) Option {
	return func(s *Server) { s.ingest = in }
}

// WithHealth sets the health check handler mounted at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer creates the API server over the given store, orchestrator and
// chunk tracker.
func NewServer(st store.Store, orch *sermon.Orchestrator, tracker *chunk.Tracker, seg *transcript.Segmenter, opts ...Option) *Server {
	s := &Server{
		store:     st,
		orch:      orch,
		tracker:   tracker,
		segmenter: seg,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full route table. Observability middleware is applied
// when metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sermons", s.handleCreateSermon)
	mux.HandleFunc("GET /api/sermons", s.handleListSermons)
	mux.HandleFunc("GET /api/sermons/{id}", s.handleGetSermon)
	mux.HandleFunc("DELETE /api/sermons/{id}", s.handleDeleteSermon)
	mux.HandleFunc("POST /api/sermons/{id}/process", s.handleProcess)
	mux.HandleFunc("POST /api/sermons/{id}/retry", s.handleRetry)

	mux.HandleFunc("PUT /api/sermons/{id}/chunks/{index}", s.handleUploadChunk)
	mux.HandleFunc("GET /api/sermons/{id}/chunks", s.handleListChunks)

	mux.HandleFunc("GET /api/sermons/{id}/transcript", s.handleGetTranscript)
	mux.HandleFunc("GET /api/sermons/{id}/segments", s.handleGetSegments)
	mux.HandleFunc("GET /api/sermons/{id}/guide", s.handleGetStudyGuide)

	mux.HandleFunc("POST /api/sermons/{id}/engagements", s.handleCreateEngagement)
	mux.HandleFunc("GET /api/sermons/{id}/engagements", s.handleListEngagements)
	mux.HandleFunc("DELETE /api/engagements/{fingerprint}", s.handleDeleteEngagement)

	mux.HandleFunc("GET /api/sync/dirty", s.handleSyncDirty)
	mux.HandleFunc("POST /api/sync/sermons", s.handleSyncApplySermon)
	mux.HandleFunc("POST /api/sync/sermons/{id}/ack", s.handleSyncAck)
	mux.HandleFunc("POST /api/sync/engagements", s.handleSyncApplyEngagement)

	mux.HandleFunc("GET /ws/captions", s.handleCaptions)

	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}

	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

// ── response helpers ────────────────────────────────────────────────────────

// errorBody is the JSON shape of all error responses.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps the shared sentinel errors onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sermon.ErrNotFound), errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sermon.ErrProcessing):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sermon.ErrDeleted):
		s.writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, sermon.ErrInvalidState), errors.Is(err, chunk.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chunk.ErrNotContiguous), errors.Is(err, chunk.ErrUnknownChunk):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
