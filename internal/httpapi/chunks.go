package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/calebmoss/berea/internal/chunk"
)

// maxChunkBytes bounds a single uploaded audio chunk. Chunks are ~30s of
// 16 kHz mono PCM, so 16 MiB leaves generous headroom.
const maxChunkBytes = 16 << 20

// chunkListResponse is the body for GET /api/sermons/{id}/chunks.
type chunkListResponse struct {
	Chunks         []chunk.Chunk `json:"chunks"`
	UploadProgress float64       `json:"upload_progress"`
	AllTranscribed bool          `json:"all_transcribed"`
}

// handleUploadChunk ingests one raw audio chunk. The body is the WAV data;
// placement is carried in query parameters:
//
//	PUT /api/sermons/{id}/chunks/{index}?offset_ms=30000&duration_ms=30000
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chunk ingest is not configured")
		return
	}

	id := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		s.writeError(w, http.StatusBadRequest, "chunk index must be a non-negative integer")
		return
	}
	offset, err := queryDurationMS(r, "offset_ms")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	duration, err := queryDurationMS(r, "duration_ms")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if duration <= 0 {
		s.writeError(w, http.StatusBadRequest, "duration_ms must be positive")
		return
	}

	wav, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read chunk body: "+err.Error())
		return
	}
	if len(wav) == 0 {
		s.writeError(w, http.StatusBadRequest, "chunk body is empty")
		return
	}
	if len(wav) > maxChunkBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "chunk exceeds size limit")
		return
	}

	start := time.Now()
	if err := s.ingest.IngestChunk(r.Context(), id, index, offset, duration, wav); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ChunkUploadDuration.Record(r.Context(), time.Since(start).Seconds())
	}
	s.writeJSON(w, http.StatusAccepted, chunkListResponse{
		Chunks:         s.tracker.Chunks(id),
		UploadProgress: s.tracker.UploadProgress(id),
		AllTranscribed: s.tracker.AllTranscribed(id),
	})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.orch.Get(id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chunkListResponse{
		Chunks:         s.tracker.Chunks(id),
		UploadProgress: s.tracker.UploadProgress(id),
		AllTranscribed: s.tracker.AllTranscribed(id),
	})
}

// queryDurationMS parses an integer millisecond query parameter into a
// [time.Duration]. A missing parameter is zero.
func queryDurationMS(r *http.Request, key string) (time.Duration, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return 0, &badParamError{key: key}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

type badParamError struct{ key string }

func (e *badParamError) Error() string {
	return e.key + " must be a non-negative integer"
}
