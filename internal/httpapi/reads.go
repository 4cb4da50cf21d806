package httpapi

import (
	"net/http"
)

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTranscript(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetSegments(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTranscript(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.segmenter.Segments(t))
}

func (s *Server) handleGetStudyGuide(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetStudyGuide(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}
