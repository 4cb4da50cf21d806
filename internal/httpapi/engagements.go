package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/calebmoss/berea/pkg/fingerprint"
	"github.com/calebmoss/berea/pkg/store"
)

// createEngagementRequest is the body for POST /api/sermons/{id}/engagements.
// The record's identity is a fingerprint of its content, so re-posting the
// same engagement is an upsert, not a duplicate.
type createEngagementRequest struct {
	UserID     string `json:"user_id"`
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	PositionMS int64  `json:"position_ms"`
}

func (s *Server) handleCreateEngagement(w http.ResponseWriter, r *http.Request) {
	var req createEngagementRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind := store.EngagementKind(req.Kind)
	switch kind {
	case store.EngagementHighlight, store.EngagementNote, store.EngagementBookmark:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown engagement kind "+strconv.Quote(req.Kind))
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sermonID := r.PathValue("id")
	if _, err := s.orch.Get(sermonID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	rec := store.EngagementRecord{
		Fingerprint: fingerprint.New(sermonID, string(kind), req.UserID, req.Content,
			strconv.FormatInt(req.PositionMS, 10)),
		UserID:    req.UserID,
		SermonID:  sermonID,
		Kind:      kind,
		Content:   req.Content,
		Position:  time.Duration(req.PositionMS) * time.Millisecond,
		NeedsSync: true,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveEngagement(r.Context(), &rec); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListEngagements(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.Engagements(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if recs == nil {
		recs = []store.EngagementRecord{}
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleDeleteEngagement(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEngagement(r.Context(), r.PathValue("fingerprint")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
