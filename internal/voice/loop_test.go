package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lectern-ai/lectern/internal/chat"
)

type recordingChat struct {
	mu    sync.Mutex
	calls []chat.TurnRequest
	reply string
	err   error
}

func (c *recordingChat) StreamTurn(ctx context.Context, req chat.TurnRequest, onDelta chat.DeltaHandler) (chat.TurnResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	reply, err := c.reply, c.err
	c.mu.Unlock()
	if err != nil {
		return chat.TurnResponse{}, err
	}
	return chat.TurnResponse{Text: reply}, nil
}

func (c *recordingChat) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []LoopState
}

func (r *stateRecorder) record(s LoopState, detail string) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) saw(want LoopState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == want {
			return true
		}
	}
	return false
}

func newTestLoop(rec *ScriptedRecognizer, adapter chat.Adapter, synth *MockSynthesizer, states *stateRecorder) (*Loop, chan string) {
	replies := make(chan string, 4)
	deps := LoopDeps{
		Recognizer:    rec,
		Chat:          adapter,
		Synth:         synth,
		Scheduler:     NewScheduler(NewStreamDevice(func(pcm []byte, rate int) error { return nil })),
		SessionID:     "sess-1",
		DocumentID:    "doc-1",
		DocumentText:  "The document text.",
		VoiceID:       "test-voice",
		RecoveryDelay: 15 * time.Millisecond,
		OnAssistantText: func(text string) {
			replies <- text
		},
	}
	if states != nil {
		deps.OnState = states.record
	}
	return NewLoop(deps), replies
}

func TestLoopCompletesFullTurn(t *testing.T) {
	rec := NewScriptedRecognizer([][]RecognizerEvent{
		{
			{Type: RecognizerEventResult, Text: "what is this about", IsFinal: true},
			{Type: RecognizerEventEnd},
		},
	})
	adapter := &recordingChat{reply: "It is about chunked playback."}
	synth := NewMockSynthesizer()
	synth.SetSampleCount(24) // 1 ms of audio per chunk
	states := &stateRecorder{}
	loop, replies := newTestLoop(rec, adapter, synth, states)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	select {
	case reply := <-replies:
		if reply != "It is about chunked playback." {
			t.Fatalf("reply = %q", reply)
		}
	case <-time.After(time.Second):
		t.Fatalf("assistant reply never delivered")
	}

	waitUntil(t, time.Second, func() bool { return loop.State() == StateListening })
	if rec.Starts() != 2 {
		t.Fatalf("recognizer armed %d times, want 2 (initial plus re-arm)", rec.Starts())
	}
	for _, want := range []LoopState{StateProcessing, StateSynthesizing, StateSpeaking, StateListening} {
		if !states.saw(want) {
			t.Fatalf("state %q never observed: %v", want, states.states)
		}
	}
	if adapter.callCount() != 1 {
		t.Fatalf("chat calls = %d, want 1", adapter.callCount())
	}
	if got := adapter.calls[0].InputText; got != "what is this about" {
		t.Fatalf("chat input = %q", got)
	}

	loop.Close()
	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop did not unwind after Close")
	}
}

func TestLoopSpeaksReplyAsSingleUtterance(t *testing.T) {
	rec := NewScriptedRecognizer([][]RecognizerEvent{
		{
			{Type: RecognizerEventResult, Text: "summarize it", IsFinal: true},
			{Type: RecognizerEventEnd},
		},
	})
	adapter := &recordingChat{reply: "Alpha one. Bravo two."}
	synth := NewMockSynthesizer()
	dev := newManualDevice()
	sched := NewScheduler(dev)
	loop := NewLoop(LoopDeps{
		Recognizer:    rec,
		Chat:          adapter,
		Synth:         synth,
		Scheduler:     sched,
		SessionID:     "sess-1",
		DocumentID:    "doc-1",
		DocumentText:  "The document text.",
		VoiceID:       "test-voice",
		RecoveryDelay: 15 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 1 })
	if got := synth.Calls(); len(got) != 1 || got[0] != "Alpha one. Bravo two." {
		t.Fatalf("synth calls = %v, want the whole reply in one request", got)
	}
	waitUntil(t, time.Second, func() bool { return loop.State() == StateSpeaking })

	// Read-aloud starting on the shared scheduler preempts the reply. The
	// loop must treat that as the end of speech and resume listening without
	// reclaiming the device.
	readAloud, err := sched.Play(AudioUnit{Samples: make([]float32, 4), SampleRate: 24000})
	if err != nil {
		t.Fatalf("Play error: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return loop.State() == StateListening })
	waitUntil(t, time.Second, func() bool { return rec.Starts() == 2 })
	if readAloud.Finished() {
		t.Fatalf("read-aloud handle was stopped by the loop")
	}
	if dev.beginCount() != 2 {
		t.Fatalf("device begun %d buffers, want 2", dev.beginCount())
	}

	loop.Close()
	<-loop.Done()
}

func TestLoopSilentUtteranceKeepsListening(t *testing.T) {
	rec := NewScriptedRecognizer([][]RecognizerEvent{
		{{Type: RecognizerEventEnd}},
	})
	adapter := &recordingChat{reply: "unused"}
	loop, _ := newTestLoop(rec, adapter, NewMockSynthesizer(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitUntil(t, time.Second, func() bool { return rec.Starts() == 2 })
	if adapter.callCount() != 0 {
		t.Fatalf("silence must not trigger a chat turn")
	}
	if loop.State() != StateListening {
		t.Fatalf("state = %q, want listening", loop.State())
	}
	loop.Close()
	<-loop.Done()
}

func TestLoopBenignRecognizerErrorRearms(t *testing.T) {
	rec := NewScriptedRecognizer([][]RecognizerEvent{
		{{Type: RecognizerEventError, Code: "no-speech"}},
	})
	adapter := &recordingChat{}
	states := &stateRecorder{}
	loop, _ := newTestLoop(rec, adapter, NewMockSynthesizer(), states)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitUntil(t, time.Second, func() bool { return rec.Starts() == 2 })
	if states.saw(StateError) {
		t.Fatalf("no-speech must not surface as an error state")
	}
	loop.Close()
	<-loop.Done()
}

func TestLoopFatalRecognizerErrorRecoversAfterDelay(t *testing.T) {
	rec := NewScriptedRecognizer([][]RecognizerEvent{
		{{Type: RecognizerEventError, Code: "not-allowed"}},
	})
	adapter := &recordingChat{}
	states := &stateRecorder{}
	loop, _ := newTestLoop(rec, adapter, NewMockSynthesizer(), states)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitUntil(t, time.Second, func() bool { return states.saw(StateError) })
	waitUntil(t, time.Second, func() bool { return rec.Starts() == 2 })
	if loop.State() != StateListening {
		t.Fatalf("state after recovery = %q, want listening", loop.State())
	}
	loop.Close()
	<-loop.Done()
}

func TestLoopChatFailureEntersErrorThenRecovers(t *testing.T) {
	rec := NewScriptedRecognizer([][]RecognizerEvent{
		{
			{Type: RecognizerEventResult, Text: "hello", IsFinal: true},
			{Type: RecognizerEventEnd},
		},
	})
	adapter := &recordingChat{err: errors.New("backend down")}
	states := &stateRecorder{}
	loop, _ := newTestLoop(rec, adapter, NewMockSynthesizer(), states)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitUntil(t, time.Second, func() bool { return states.saw(StateError) })
	waitUntil(t, time.Second, func() bool { return rec.Starts() == 2 })
	if loop.State() != StateListening {
		t.Fatalf("state after recovery = %q, want listening", loop.State())
	}
	loop.Close()
	<-loop.Done()
}

func TestLoopSynthesisFailureDegradesToText(t *testing.T) {
	rec := NewScriptedRecognizer([][]RecognizerEvent{
		{
			{Type: RecognizerEventResult, Text: "hello", IsFinal: true},
			{Type: RecognizerEventEnd},
		},
	})
	adapter := &recordingChat{reply: "Spoken reply."}
	synth := NewMockSynthesizer()
	synth.FailOn("Spoken reply.", errors.New("tts down"))
	states := &stateRecorder{}
	loop, replies := newTestLoop(rec, adapter, synth, states)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	select {
	case reply := <-replies:
		if reply != "Spoken reply." {
			t.Fatalf("reply = %q", reply)
		}
	case <-time.After(time.Second):
		t.Fatalf("reply text must still be delivered when synthesis fails")
	}

	waitUntil(t, time.Second, func() bool { return rec.Starts() == 2 })
	if states.saw(StateError) {
		t.Fatalf("synthesis failure must degrade, not enter the error state")
	}
	if states.saw(StateSpeaking) {
		t.Fatalf("loop must not report speaking when no audio rendered")
	}
	loop.Close()
	<-loop.Done()
}
