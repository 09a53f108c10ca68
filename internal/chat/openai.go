package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter answers turns with the OpenAI chat completion API, grounding
// every turn on the uploaded document's extracted text.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

func NewOpenAIAdapter(apiKey, model, baseURL string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimSpace(baseURL)
	}
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

const systemPrompt = "You are a reading companion. Answer questions about the " +
	"provided document faithfully and conversationally. If the answer is not in " +
	"the document, say so."

// Document context is truncated so one oversized upload cannot blow the
// request budget; the head of a document carries most referential anchors.
const maxDocumentContextRunes = 24000

func (a *OpenAIAdapter) StreamTurn(ctx context.Context, req TurnRequest, onDelta DeltaHandler) (TurnResponse, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if doc := strings.TrimSpace(req.DocumentText); doc != "" {
		runes := []rune(doc)
		if len(runes) > maxDocumentContextRunes {
			runes = runes[:maxDocumentContextRunes]
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Document:\n" + string(runes),
		})
	}
	for _, line := range req.History {
		role := openai.ChatMessageRoleUser
		content := line
		if rest, ok := strings.CutPrefix(line, "assistant: "); ok {
			role = openai.ChatMessageRoleAssistant
			content = rest
		} else if rest, ok := strings.CutPrefix(line, "user: "); ok {
			content = rest
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.InputText,
	})

	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return TurnResponse{}, fmt.Errorf("create chat stream: %w", err)
	}
	defer stream.Close()

	var out strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return TurnResponse{}, fmt.Errorf("read chat stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return TurnResponse{}, err
			}
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return TurnResponse{}, ErrEmptyReply
	}
	return TurnResponse{Text: text}, nil
}
