package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lectern-ai/lectern/internal/reliability"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	elevenLabsOutputFormat   = "pcm_24000"
	elevenLabsMaxRetries     = 1
)

// ElevenLabsSynthesizer calls the ElevenLabs text-to-speech endpoint and
// returns the raw PCM stream base64 encoded. Retryable upstream statuses get
// one bounded retry; everything else fails the call.
type ElevenLabsSynthesizer struct {
	apiKey  string
	baseURL string
	modelID string
	client  *http.Client
}

func NewElevenLabsSynthesizer(apiKey, baseURL, modelID string) *ElevenLabsSynthesizer {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultElevenLabsBaseURL
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "eleven_turbo_v2_5"
	}
	return &ElevenLabsSynthesizer{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		modelID: modelID,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty synthesis text")
	}
	if strings.TrimSpace(voiceID) == "" {
		return "", fmt.Errorf("voice id is required")
	}

	payload, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: s.modelID})
	if err != nil {
		return "", fmt.Errorf("encode tts request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		s.baseURL, url.PathEscape(voiceID), elevenLabsOutputFormat)

	var lastErr error
	for attempt := 0; attempt <= elevenLabsMaxRetries; attempt++ {
		pcm, status, err := s.post(ctx, endpoint, payload)
		if err == nil {
			return base64.StdEncoding.EncodeToString(pcm), nil
		}
		lastErr = err
		if ctx.Err() != nil || !reliability.IsRetryableHTTPStatus(status) {
			break
		}
	}
	return "", lastErr
}

func (s *ElevenLabsSynthesizer) post(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("tts status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read tts stream: %w", err)
	}
	if len(pcm) == 0 {
		return nil, resp.StatusCode, fmt.Errorf("tts returned empty audio")
	}
	return pcm, resp.StatusCode, nil
}
