package httpapi

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lectern-ai/lectern/internal/docstore"
	"github.com/lectern-ai/lectern/internal/protocol"
	"github.com/lectern-ai/lectern/internal/voice"
)

// wsRecognizer adapts overlay websocket messages to the recognizer interface
// consumed by the conversation loop. The browser owns the recognition
// engine; Start just tells it to arm for the next utterance.
type wsRecognizer struct {
	sessionID string
	outbound  chan<- any

	mu     sync.Mutex
	closed bool
	events chan voice.RecognizerEvent
}

func newWSRecognizer(sessionID string, outbound chan<- any) *wsRecognizer {
	return &wsRecognizer{
		sessionID: sessionID,
		outbound:  outbound,
		events:    make(chan voice.RecognizerEvent, 64),
	}
}

func (r *wsRecognizer) Start(ctx context.Context) error {
	msg := protocol.ListenStart{Type: protocol.TypeListenStart, SessionID: r.sessionID}
	select {
	case r.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *wsRecognizer) Events() <-chan voice.RecognizerEvent { return r.events }

func (r *wsRecognizer) push(ev voice.RecognizerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		log.Printf("voice ws %s: recognizer event queue full, dropping %s", r.sessionID, ev.Type)
	}
}

func (r *wsRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	return nil
}

func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	doc, err := s.store.GetDocument(r.Context(), sess.DocumentID)
	if err != nil {
		respondError(w, http.StatusNotFound, "document_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	enqueue := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Writes stay single-threaded; drop when the queue is saturated.
			if t, ok := messageTypeOf(msg); ok {
				log.Printf("voice ws %s: outbound queue full, dropping %s", sessionID, t)
			}
		}
	}

	var audioSeq int
	var seqMu sync.Mutex
	gen := s.bridge.SetSink(func(pcm []byte, sampleRate int) error {
		seqMu.Lock()
		audioSeq++
		seq := audioSeq
		seqMu.Unlock()
		enqueue(protocol.AssistantAudioChunk{
			Type:        protocol.TypeAssistantAudioChunk,
			SessionID:   sessionID,
			Seq:         seq,
			PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
			SampleRate:  sampleRate,
		})
		return nil
	})
	defer s.bridge.ClearSink(gen)

	// Status snapshots carry the latest transcript and reply alongside the
	// state, so a reconnecting overlay can rebuild its view from one message.
	var turnMu sync.Mutex
	var lastTranscript, lastResponse string

	recognizer := newWSRecognizer(sessionID, outbound)
	loop := voice.NewLoop(voice.LoopDeps{
		Recognizer:    recognizer,
		Chat:          s.adapter,
		Synth:         s.synth,
		Scheduler:     s.sched,
		Metrics:       s.metrics,
		SessionID:     sessionID,
		DocumentID:    sess.DocumentID,
		DocumentText:  doc.Text,
		VoiceID:       sess.VoiceID,
		SampleRate:    s.cfg.SynthSampleRate,
		RecoveryDelay: s.cfg.VoiceErrorRecoveryDelay,
		Preempt:       s.pipeline.StopAll,
		OnState: func(state voice.LoopState, detail string) {
			turnMu.Lock()
			transcript, response := lastTranscript, lastResponse
			turnMu.Unlock()
			enqueue(protocol.VoiceStatus{
				Type:         protocol.TypeVoiceStatus,
				SessionID:    sessionID,
				Status:       string(state),
				Transcript:   transcript,
				LastResponse: response,
				Message:      detail,
			})
		},
		OnTranscript: func(text string) {
			turnMu.Lock()
			lastTranscript = text
			turnMu.Unlock()
			s.persistVoiceMessage(sess.DocumentID, sessionID, "user", text)
		},
		OnAssistantText: func(text string) {
			turnMu.Lock()
			lastResponse = text
			turnMu.Unlock()
			enqueue(protocol.AssistantText{
				Type:      protocol.TypeAssistantText,
				SessionID: sessionID,
				Text:      text,
			})
			s.persistVoiceMessage(sess.DocumentID, sessionID, "assistant", text)
		},
	})
	go loop.Run(ctx)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		_ = s.sessions.Touch(sessionID)

		switch m := parsed.(type) {
		case protocol.RecognizerResult:
			recognizer.push(voice.RecognizerEvent{
				Type:    voice.RecognizerEventResult,
				Text:    m.Text,
				IsFinal: m.IsFinal,
			})
		case protocol.RecognizerEnd:
			recognizer.push(voice.RecognizerEvent{Type: voice.RecognizerEventEnd})
		case protocol.RecognizerError:
			recognizer.push(voice.RecognizerEvent{
				Type:   voice.RecognizerEventError,
				Code:   m.Code,
				Detail: m.Detail,
			})
		case protocol.OverlayControl:
			switch m.Action {
			case "stop_speaking":
				s.sched.StopActive()
			case "end":
				break readLoop
			}
		}
	}

	cancel()
	loop.Close()
	<-loop.Done()
	<-writerDone
}

func (s *Server) persistVoiceMessage(documentID, sessionID, role, content string) {
	rec := docstore.MessageRecord{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveMessage(s.lifecycleContext(), rec); err != nil {
		log.Printf("voice ws %s: persist %s message: %v", sessionID, role, err)
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.RecognizerResult:
		return m.Type, true
	case protocol.RecognizerEnd:
		return m.Type, true
	case protocol.RecognizerError:
		return m.Type, true
	case protocol.OverlayControl:
		return m.Type, true
	case protocol.ListenStart:
		return m.Type, true
	case protocol.VoiceStatus:
		return m.Type, true
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.AssistantText:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
