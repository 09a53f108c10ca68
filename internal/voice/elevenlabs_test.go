package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestElevenLabsSynthesizeReturnsBase64PCM(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/voice-7") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_24000" {
			t.Errorf("output_format = %q", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "key-1" {
			t.Errorf("xi-api-key = %q", got)
		}
		var body elevenLabsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "Hello there." {
			t.Errorf("text = %q", body.Text)
		}
		w.Write(raw)
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer("key-1", srv.URL, "")
	got, err := s.Synthesize(context.Background(), "Hello there.", "voice-7")
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if got != base64.StdEncoding.EncodeToString(raw) {
		t.Fatalf("payload mismatch: %q", got)
	}
}

func TestElevenLabsSynthesizeRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte{0x00, 0x00})
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer("key-1", srv.URL, "")
	if _, err := s.Synthesize(context.Background(), "Hello.", "v"); err != nil {
		t.Fatalf("Synthesize error after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestElevenLabsSynthesizeDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad voice", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewElevenLabsSynthesizer("key-1", srv.URL, "")
	_, err := s.Synthesize(context.Background(), "Hello.", "v")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status 401", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestElevenLabsSynthesizeRejectsEmptyInput(t *testing.T) {
	s := NewElevenLabsSynthesizer("key-1", "http://unused", "")
	if _, err := s.Synthesize(context.Background(), "  ", "v"); err == nil {
		t.Fatalf("expected error for empty text")
	}
	if _, err := s.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatalf("expected error for empty voice id")
	}
}
