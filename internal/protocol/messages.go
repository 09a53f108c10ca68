package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants on the voice overlay.
type MessageType string

const (
	// Client → server. The browser owns the recognition engine and forwards
	// its events; the server owns the conversation state machine.
	TypeRecognizerResult MessageType = "recognizer_result"
	TypeRecognizerEnd    MessageType = "recognizer_end"
	TypeRecognizerError  MessageType = "recognizer_error"
	TypeOverlayControl   MessageType = "overlay_control"

	// Server → client.
	TypeListenStart         MessageType = "listen_start"
	TypeVoiceStatus         MessageType = "voice_status"
	TypeAssistantAudioChunk MessageType = "assistant_audio_chunk"
	TypeAssistantText       MessageType = "assistant_text"
	TypeErrorEvent          MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type RecognizerResult struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	IsFinal   bool        `json:"is_final"`
	TSMs      int64       `json:"ts_ms"`
}

type RecognizerEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type RecognizerError struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type OverlayControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// ListenStart tells the client to re-arm its single-utterance recognizer.
type ListenStart struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type VoiceStatus struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Status       string      `json:"status"`
	Transcript   string      `json:"transcript,omitempty"`
	LastResponse string      `json:"last_response,omitempty"`
	Message      string      `json:"message,omitempty"`
}

type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
}

type AssistantText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates one inbound overlay message.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeRecognizerResult:
		var msg RecognizerResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid recognizer_result")
		}
		return msg, nil
	case TypeRecognizerEnd:
		var msg RecognizerEnd
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid recognizer_end")
		}
		return msg, nil
	case TypeRecognizerError:
		var msg RecognizerError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Code == "" {
			return nil, errors.New("invalid recognizer_error")
		}
		return msg, nil
	case TypeOverlayControl:
		var msg OverlayControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid overlay_control")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}
