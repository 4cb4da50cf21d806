package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/pkg/fingerprint"
)

// createSermonRequest is the body for POST /api/sermons. ID is optional;
// imports from another device carry their existing id, fresh recordings get
// a generated one.
type createSermonRequest struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Speaker    string    `json:"speaker"`
	RecordedAt time.Time `json:"recorded_at"`
	DurationMS int64     `json:"duration_ms"`
	AudioURL   string    `json:"audio_url"`
}

// sermonResponse augments the stored sermon with derived view state.
type sermonResponse struct {
	sermon.Sermon
	Complete       bool    `json:"complete"`
	DegradedView   bool    `json:"degraded_view"`
	Processing     bool    `json:"processing"`
	UploadProgress float64 `json:"upload_progress"`
}

func (s *Server) sermonResponse(sm sermon.Sermon) sermonResponse {
	return sermonResponse{
		Sermon:         sm,
		Complete:       sm.IsComplete(),
		DegradedView:   !sm.IsComplete() && sm.CanViewInDegradedMode(),
		Processing:     sm.Processing(),
		UploadProgress: s.tracker.UploadProgress(sm.ID),
	}
}

func (s *Server) handleCreateSermon(w http.ResponseWriter, r *http.Request) {
	var req createSermonRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RecordedAt.IsZero() {
		req.RecordedAt = time.Now().UTC()
	}

	sm := sermon.Sermon{
		ID:         req.ID,
		Title:      req.Title,
		Speaker:    req.Speaker,
		RecordedAt: req.RecordedAt,
		Duration:   time.Duration(req.DurationMS) * time.Millisecond,
		AudioURL:   req.AudioURL,
		ContentHash: fingerprint.New(req.ID, "sermon",
			req.Title, req.Speaker, req.RecordedAt.UTC().Format(time.RFC3339)),
		NeedsSync: true,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.orch.Register(r.Context(), sm); err != nil {
		s.writeDomainError(w, err)
		return
	}

	created, err := s.orch.Get(sm.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.sermonResponse(created))
}

func (s *Server) handleListSermons(w http.ResponseWriter, r *http.Request) {
	sermons, err := s.store.ListSermons(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]sermonResponse, 0, len(sermons))
	for _, sm := range sermons {
		out = append(out, s.sermonResponse(sm))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSermon(w http.ResponseWriter, r *http.Request) {
	sm, err := s.orch.Get(r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sermonResponse(sm))
}

func (s *Server) handleDeleteSermon(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Look up the transcript before the delete tombstones the sermon, so the
	// segment cache entry keyed by its content hash can be dropped after.
	tr, trErr := s.store.GetTranscript(r.Context(), id)
	if err := s.orch.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if trErr == nil {
		s.segmenter.Invalidate(tr.ContentHash())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.StartTranscription(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	sm, err := s.orch.Get(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.sermonResponse(sm))
}

// retryRequest selects which failed track to re-run.
type retryRequest struct {
	Track string `json:"track"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	track := sermon.Track(req.Track)
	if track != sermon.TrackTranscription && track != sermon.TrackStudyGuide {
		s.writeError(w, http.StatusBadRequest, "track must be "+
			strconv.Quote(string(sermon.TrackTranscription))+" or "+
			strconv.Quote(string(sermon.TrackStudyGuide)))
		return
	}

	id := r.PathValue("id")
	if err := s.orch.Retry(r.Context(), id, track); err != nil {
		s.writeDomainError(w, err)
		return
	}
	sm, err := s.orch.Get(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.sermonResponse(sm))
}
