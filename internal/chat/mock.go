package chat

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no API key is set.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamTurn(ctx context.Context, req TurnRequest, onDelta DeltaHandler) (TurnResponse, error) {
	select {
	case <-ctx.Done():
		return TurnResponse{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return TurnResponse{}, err
		}
	}
	return TurnResponse{Text: text}, nil
}

func buildMockReply(req TurnRequest) string {
	question := strings.TrimSpace(req.InputText)
	if question == "" {
		return "I am listening."
	}
	if strings.TrimSpace(req.DocumentText) == "" {
		return fmt.Sprintf("You asked: %s. No document is loaded yet.", question)
	}

	words := strings.Fields(req.DocumentText)
	if len(words) > 12 {
		words = words[:12]
	}
	return fmt.Sprintf("You asked: %s. The document begins: %s.", question, strings.Join(words, " "))
}
