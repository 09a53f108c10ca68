package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TurnRequest is the normalized request sent to the chat service.
type TurnRequest struct {
	SessionID    string   `json:"session_id"`
	DocumentID   string   `json:"document_id"`
	InputText    string   `json:"input_text"`
	DocumentText string   `json:"document_text,omitempty"`
	History      []string `json:"history,omitempty"`
}

// TurnResponse is the final consolidated reply after streaming deltas.
type TurnResponse struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// ErrEmptyReply is returned when the service produced no usable text.
var ErrEmptyReply = errors.New("chat service returned no text")

// Adapter bridges the voice loop and chat surface to a reasoning backend.
// The text surface consumes deltas as they arrive; the voice loop passes a
// nil handler and uses only the consolidated response.
type Adapter interface {
	StreamTurn(ctx context.Context, req TurnRequest, onDelta DeltaHandler) (TurnResponse, error)
}

// Config controls adapter construction.
type Config struct {
	Mode    string
	APIKey  string
	Model   string
	BaseURL string
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIAdapter(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
		}
		return NewMockAdapter(), nil
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("OpenAI API key is required for openai mode")
		}
		return NewOpenAIAdapter(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported chat adapter mode %q", cfg.Mode)
	}
}
