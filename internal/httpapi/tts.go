package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/lectern-ai/lectern/internal/audio"
)

const maxPreviewTextLen = 600

type ttsPreviewRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id,omitempty"`
}

// handlePreviewTTS synthesizes a short sample and returns it as a WAV body
// so a browser audio element can play it without decoding raw PCM.
func (s *Server) handlePreviewTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}
	if len(text) > maxPreviewTextLen {
		respondError(w, http.StatusBadRequest, "text_too_long", "preview text is limited to 600 bytes")
		return
	}
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = s.cfg.ElevenLabsTTSVoice
	}

	b64, err := s.synth.Synthesize(r.Context(), text, voiceID)
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues("tts", "preview_failed").Inc()
		respondError(w, http.StatusBadGateway, "synthesis_failed", err.Error())
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		respondError(w, http.StatusBadGateway, "invalid_audio", err.Error())
		return
	}

	wav, err := audio.EncodeWAVPCM16LE(pcm, s.cfg.SynthSampleRate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}
