package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/docstore"
)

const chatHistoryLimit = 20

type chatStreamRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// streamLine is one newline-delimited JSON event on the chat response.
// Delta lines carry text fragments; the final line carries the consolidated
// reply and its message id.
type streamLine struct {
	Delta     string `json:"delta,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	doc, err := s.store.GetDocument(r.Context(), docID)
	if err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			respondError(w, http.StatusNotFound, "document_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "store_failed", err.Error())
		return
	}

	var req chatStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "message is required")
		return
	}
	if req.SessionID != "" {
		_ = s.sessions.Touch(req.SessionID)
	}

	history, err := s.recentHistory(r, docID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failed", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	writeLine := func(line streamLine) error {
		if err := enc.Encode(line); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	resp, err := s.adapter.StreamTurn(r.Context(), chat.TurnRequest{
		SessionID:    req.SessionID,
		DocumentID:   docID,
		InputText:    message,
		DocumentText: doc.Text,
		History:      history,
	}, func(delta string) error {
		return writeLine(streamLine{Delta: delta})
	})
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues("chat", "turn_failed").Inc()
		_ = writeLine(streamLine{Done: true, Error: err.Error()})
		return
	}

	messageID := uuid.NewString()
	s.persistTurn(r, docID, req.SessionID, message, messageID, resp.Text)
	_ = writeLine(streamLine{Done: true, Text: resp.Text, MessageID: messageID})
}

func (s *Server) recentHistory(r *http.Request, docID string) ([]string, error) {
	records, err := s.store.RecentMessages(r.Context(), docID, chatHistoryLimit)
	if err != nil {
		return nil, err
	}
	history := make([]string, 0, len(records))
	for _, rec := range records {
		history = append(history, rec.Role+": "+rec.Content)
	}
	return history, nil
}

// persistTurn saves both sides of the exchange. Persistence failures are
// logged and swallowed; the reply was already streamed.
func (s *Server) persistTurn(r *http.Request, docID, sessionID, userText, messageID, replyText string) {
	now := time.Now().UTC()
	records := []docstore.MessageRecord{
		{ID: uuid.NewString(), DocumentID: docID, SessionID: sessionID, Role: "user", Content: userText, CreatedAt: now},
		{ID: messageID, DocumentID: docID, SessionID: sessionID, Role: "assistant", Content: replyText, CreatedAt: now},
	}
	for _, rec := range records {
		if err := s.store.SaveMessage(r.Context(), rec); err != nil {
			log.Printf("chat: persist %s message for document %s: %v", rec.Role, docID, err)
		}
	}
}
