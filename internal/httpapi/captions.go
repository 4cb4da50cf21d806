package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/calebmoss/berea/internal/caption"
)

// captionMessage is one server-to-client frame: the new, never-before-seen
// verse references detected in the caption text just received.
type captionMessage struct {
	Detections []caption.Detection `json:"detections"`
}

// handleCaptions runs one live caption detection session over a websocket.
// The client streams finalized caption text as text frames; for each frame
// that surfaces references not yet seen in this session, the server replies
// with a [captionMessage]. The seen-set lives and dies with the connection.
func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("caption websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session aborted")

	ctx := r.Context()
	session := caption.NewSession()
	if s.metrics != nil {
		s.metrics.ActiveCaptionSessions.Add(ctx, 1)
		defer s.metrics.ActiveCaptionSessions.Add(ctx, -1)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.log.Debug("caption session ended", "err", err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		detections := session.ScanNew(string(data))
		if len(detections) == 0 {
			continue
		}
		if s.metrics != nil {
			s.metrics.CaptionDetections.Add(ctx, int64(len(detections)))
		}

		payload, err := json.Marshal(captionMessage{Detections: detections})
		if err != nil {
			s.log.Error("marshal caption detections", "err", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			s.log.Debug("caption session write failed", "err", err)
			return
		}
	}
}
