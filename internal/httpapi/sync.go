package httpapi

import (
	"net/http"

	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/pkg/store"
)

// dirtyResponse is the body for GET /api/sync/dirty: everything the local
// store wants to push, including tombstones awaiting propagation.
type dirtyResponse struct {
	Sermons []sermon.Sermon `json:"sermons"`
}

func (s *Server) handleSyncDirty(w http.ResponseWriter, r *http.Request) {
	sermons, err := s.store.DirtySermons(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if sermons == nil {
		sermons = []sermon.Sermon{}
	}
	s.writeJSON(w, http.StatusOK, dirtyResponse{Sermons: sermons})
}

// handleSyncApplySermon merges a sermon pushed by another device. Conflicts
// resolve by most recent update, with the content hash breaking exact ties.
func (s *Server) handleSyncApplySermon(w http.ResponseWriter, r *http.Request) {
	var remote sermon.Sermon
	if err := decodeBody(r, &remote); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if remote.ID == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.store.ApplyRemoteSermon(r.Context(), &remote); err != nil {
		s.writeDomainError(w, err)
		return
	}
	merged, err := s.store.GetSermon(r.Context(), remote.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleSyncAck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkSermonSynced(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncApplyEngagement(w http.ResponseWriter, r *http.Request) {
	var remote store.EngagementRecord
	if err := decodeBody(r, &remote); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if remote.Fingerprint == "" {
		s.writeError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}
	if err := s.store.ApplyRemoteEngagement(r.Context(), &remote); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
