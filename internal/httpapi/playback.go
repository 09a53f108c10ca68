package httpapi

import (
	"net/http"
	"strings"
)

type playbackToggleRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type playbackStateResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Failure   string `json:"failure,omitempty"`
}

// handlePlaybackToggle starts reading a message aloud, or stops it when the
// same message is already loading or playing.
func (s *Server) handlePlaybackToggle(w http.ResponseWriter, r *http.Request) {
	var req playbackToggleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.MessageID) == "" {
		respondError(w, http.StatusBadRequest, "missing_message_id", "message_id is required")
		return
	}

	// Playback outlives this request, so it runs under the server lifecycle
	// context rather than the request context.
	status := s.pipeline.PlayMessage(s.lifecycleContext(), req.MessageID, req.Text)
	respondJSON(w, http.StatusOK, playbackStateResponse{
		MessageID: req.MessageID,
		Status:    string(status),
	})
}

func (s *Server) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	messageID := strings.TrimSpace(r.URL.Query().Get("message_id"))
	if messageID == "" {
		respondError(w, http.StatusBadRequest, "missing_message_id", "query parameter message_id is required")
		return
	}

	resp := playbackStateResponse{
		MessageID: messageID,
		Status:    string(s.pipeline.Status(messageID)),
	}
	if detail, failed := s.pipeline.LastFailure(messageID); failed {
		resp.Failure = detail
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlaybackStop(w http.ResponseWriter, _ *http.Request) {
	s.pipeline.StopAll()
	respondJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}
