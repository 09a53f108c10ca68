package voice

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockSynthesizer produces deterministic PCM without any network. Used when
// no provider key is configured and throughout the tests.
type MockSynthesizer struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	latency  time.Duration
	samples  int
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{
		failures: make(map[string]error),
		samples:  240,
	}
}

// FailOn makes synthesis of the exact text return err.
func (m *MockSynthesizer) FailOn(text string, err error) {
	m.mu.Lock()
	m.failures[text] = err
	m.mu.Unlock()
}

// SetLatency adds an artificial delay to each call, cancellable via context.
func (m *MockSynthesizer) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// SetSampleCount overrides the number of samples returned per call.
func (m *MockSynthesizer) SetSampleCount(n int) {
	m.mu.Lock()
	m.samples = n
	m.mu.Unlock()
}

// Calls returns the texts synthesized so far, in order.
func (m *MockSynthesizer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	err := m.failures[text]
	latency := m.latency
	n := m.samples
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", fmt.Errorf("mock synthesis: %w", err)
	}

	// A short ramp. The content never matters, only that it decodes cleanly.
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(i%100) / 200
	}
	return EncodePCM16(samples), nil
}

// ScriptedRecognizer replays a fixed script of recognizer events, one
// utterance batch per Start call. It stands in for the browser engine in
// tests and in mock mode.
type ScriptedRecognizer struct {
	mu     sync.Mutex
	script [][]RecognizerEvent
	next   int
	starts int
	events chan RecognizerEvent
	closed bool
}

func NewScriptedRecognizer(script [][]RecognizerEvent) *ScriptedRecognizer {
	return &ScriptedRecognizer{
		script: script,
		events: make(chan RecognizerEvent, 16),
	}
}

func (r *ScriptedRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recognizer closed")
	}
	r.starts++
	if r.next >= len(r.script) {
		return nil
	}
	batch := r.script[r.next]
	r.next++
	for _, ev := range batch {
		r.events <- ev
	}
	return nil
}

func (r *ScriptedRecognizer) Events() <-chan RecognizerEvent { return r.events }

// Starts reports how many times the recognizer has been armed.
func (r *ScriptedRecognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *ScriptedRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	return nil
}
