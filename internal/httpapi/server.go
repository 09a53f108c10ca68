package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/docstore"
	"github.com/lectern-ai/lectern/internal/observability"
	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/voice"
)

type Server struct {
	cfg       config.Config
	baseCtx   context.Context
	sessions  *session.Manager
	store     docstore.Store
	extractor docstore.Extractor
	adapter   chat.Adapter
	synth     voice.Synthesizer
	pipeline  *voice.Pipeline
	sched     *voice.Scheduler
	bridge    *AudioBridge
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

// Deps collects everything the HTTP surface needs. The scheduler and bridge
// are shared with the playback pipeline so the voice overlay and read-aloud
// never render audio at the same time.
type Deps struct {
	// BaseContext scopes work that must outlive a single request, like the
	// playback pipeline. Defaults to context.Background.
	BaseContext context.Context

	Sessions  *session.Manager
	Store     docstore.Store
	Extractor docstore.Extractor
	Adapter   chat.Adapter
	Synth     voice.Synthesizer
	Pipeline  *voice.Pipeline
	Scheduler *voice.Scheduler
	Bridge    *AudioBridge
	Metrics   *observability.Metrics
}

func New(cfg config.Config, deps Deps) *Server {
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Server{
		cfg:       cfg,
		baseCtx:   baseCtx,
		sessions:  deps.Sessions,
		store:     deps.Store,
		extractor: deps.Extractor,
		adapter:   deps.Adapter,
		synth:     deps.Synth,
		pipeline:  deps.Pipeline,
		sched:     deps.Scheduler,
		bridge:    deps.Bridge,
		metrics:   deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a voice session unless
				// the deployment explicitly opens it up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/documents", s.handleUploadDocument)
	r.Get("/v1/documents", s.handleListDocuments)
	r.Get("/v1/documents/{id}", s.handleGetDocument)
	r.Post("/v1/documents/{id}/chat", s.handleChatStream)

	r.Post("/v1/playback/toggle", s.handlePlaybackToggle)
	r.Get("/v1/playback/status", s.handlePlaybackStatus)
	r.Post("/v1/playback/stop", s.handlePlaybackStop)

	r.Post("/v1/voice/session", s.handleCreateSession)
	r.Post("/v1/voice/session/{id}/end", s.handleEndSession)
	r.Get("/v1/voice/session/ws", s.handleVoiceWS)
	r.Post("/v1/voice/tts/preview", s.handlePreviewTTS)

	r.Get("/v1/perf/playback", s.handlePerfPlayback)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
		VoiceID    string `json:"voice_id"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		respondError(w, http.StatusBadRequest, "missing_document_id", "document_id is required")
		return
	}
	if _, err := s.store.GetDocument(r.Context(), req.DocumentID); err != nil {
		respondError(w, http.StatusNotFound, "document_not_found", err.Error())
		return
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		req.VoiceID = s.cfg.ElevenLabsTTSVoice
	}

	sess := s.sessions.Create(req.DocumentID, req.VoiceID)
	s.metrics.ActiveVoiceSessions.Set(float64(s.sessions.ActiveCount()))
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	if err := s.sessions.End(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveVoiceSessions.Set(float64(s.sessions.ActiveCount()))
	respondJSON(w, http.StatusOK, map[string]any{"session_id": id, "status": "ended"})
}

func (s *Server) lifecycleContext() context.Context { return s.baseCtx }

func (s *Server) handlePerfPlayback(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.PlaybackStageSnapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
