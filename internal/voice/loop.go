package voice

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/observability"
	"github.com/lectern-ai/lectern/internal/reliability"
)

// LoopState is one node of the conversation state machine.
type LoopState string

const (
	StateListening    LoopState = "listening"
	StateProcessing   LoopState = "processing"
	StateSynthesizing LoopState = "synthesizing"
	StateSpeaking     LoopState = "speaking"
	StateError        LoopState = "error"
	StateClosed       LoopState = "closed"
)

// LoopDeps wires a conversation loop to its collaborators. The recognizer
// delivers one utterance per arming and must be re-armed after every end
// event; the loop owns that re-arming.
type LoopDeps struct {
	Recognizer Recognizer
	Chat       chat.Adapter
	Synth      Synthesizer
	Scheduler  *Scheduler
	Metrics    *observability.Metrics

	SessionID    string
	DocumentID   string
	DocumentText string
	VoiceID      string
	SampleRate   int

	// RecoveryDelay is how long the loop sits in the error state before
	// resuming listening.
	RecoveryDelay time.Duration

	// Preempt silences any other consumer of the output device before the
	// loop speaks. Optional.
	Preempt func()

	// OnState is invoked on every state transition, with a short detail for
	// the error state. Optional.
	OnState func(state LoopState, detail string)

	// OnTranscript delivers the final user utterance before the chat turn
	// runs. Optional.
	OnTranscript func(text string)

	// OnAssistantText delivers the full reply text once the chat turn
	// finishes, before synthesis. Optional.
	OnAssistantText func(text string)
}

// Loop runs one voice conversation: listen, run the chat turn, synthesize
// the reply, speak it, listen again. All provider failures degrade or
// recover; none of them terminate the loop.
type Loop struct {
	deps LoopDeps

	mu      sync.Mutex
	state   LoopState
	history []string
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLoop(deps LoopDeps) *Loop {
	if deps.RecoveryDelay <= 0 {
		deps.RecoveryDelay = 3 * time.Second
	}
	if deps.SampleRate <= 0 {
		deps.SampleRate = 24000
	}
	return &Loop{
		deps:  deps,
		state: StateListening,
		done:  make(chan struct{}),
	}
}

// State returns the current state machine node.
func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed when Run has fully unwound.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run drives the state machine until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		cancel()
		close(l.done)
		return
	}
	l.cancel = cancel
	l.mu.Unlock()

	defer close(l.done)
	defer cancel()

	l.setState(StateListening, "")
	if err := l.deps.Recognizer.Start(ctx); err != nil {
		l.enterError(ctx, "recognizer start failed: "+err.Error())
	}

	var transcript strings.Builder
	for {
		select {
		case <-ctx.Done():
			l.setState(StateClosed, "")
			return
		case ev, ok := <-l.deps.Recognizer.Events():
			if !ok {
				l.setState(StateClosed, "")
				return
			}
			switch ev.Type {
			case RecognizerEventResult:
				if ev.IsFinal {
					if transcript.Len() > 0 {
						transcript.WriteByte(' ')
					}
					transcript.WriteString(strings.TrimSpace(ev.Text))
				}
			case RecognizerEventEnd:
				text := strings.TrimSpace(transcript.String())
				transcript.Reset()
				if text == "" {
					// Silence. Keep listening.
					l.rearm(ctx)
					continue
				}
				l.runTurn(ctx, text)
			case RecognizerEventError:
				transcript.Reset()
				if reliability.IsFatalRecognizerCode(ev.Code) {
					l.enterError(ctx, "recognizer: "+ev.Code)
					continue
				}
				// Benign codes like no-speech or aborted just re-arm.
				l.rearm(ctx)
			}
		}
	}
}

// Close tears the loop down. Safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = l.deps.Recognizer.Close()
}

func (l *Loop) setState(s LoopState, detail string) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = s
	l.mu.Unlock()
	if l.deps.OnState != nil {
		l.deps.OnState(s, detail)
	}
}

func (l *Loop) rearm(ctx context.Context) {
	l.setState(StateListening, "")
	if err := l.deps.Recognizer.Start(ctx); err != nil {
		l.enterError(ctx, "recognizer start failed: "+err.Error())
	}
}

// enterError parks the loop in the error state for the recovery delay, then
// resumes listening. Cancellation cuts the wait short.
func (l *Loop) enterError(ctx context.Context, detail string) {
	log.Printf("voice loop %s: %s", l.deps.SessionID, detail)
	l.setState(StateError, detail)
	select {
	case <-time.After(l.deps.RecoveryDelay):
	case <-ctx.Done():
		return
	}
	l.rearm(ctx)
}

func (l *Loop) runTurn(ctx context.Context, userText string) {
	if l.deps.OnTranscript != nil {
		l.deps.OnTranscript(userText)
	}
	l.setState(StateProcessing, "")

	l.mu.Lock()
	history := make([]string, len(l.history))
	copy(history, l.history)
	l.mu.Unlock()

	chatStart := time.Now()
	resp, err := l.deps.Chat.StreamTurn(ctx, chat.TurnRequest{
		SessionID:    l.deps.SessionID,
		DocumentID:   l.deps.DocumentID,
		InputText:    userText,
		DocumentText: l.deps.DocumentText,
		History:      history,
	}, nil)
	if err != nil {
		if l.deps.Metrics != nil {
			l.deps.Metrics.VoiceTurns.WithLabelValues("chat_error").Inc()
		}
		l.enterError(ctx, "chat turn failed: "+err.Error())
		return
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.ObservePlaybackStage(observability.StageChatReply, time.Since(chatStart))
	}

	l.mu.Lock()
	l.history = append(l.history, "user: "+userText, "assistant: "+resp.Text)
	l.mu.Unlock()
	if l.deps.OnAssistantText != nil {
		l.deps.OnAssistantText(resp.Text)
	}

	if !l.speak(ctx, resp.Text) {
		return
	}
	if l.deps.Metrics != nil {
		l.deps.Metrics.VoiceTurns.WithLabelValues("ok").Inc()
	}
	l.rearm(ctx)
}

// speak synthesizes the full reply as one utterance and renders it through
// the shared scheduler. Only read-aloud chunks its text; a conversation reply
// plays as a single handle, so another consumer starting playback stops it
// and the loop reads that as completion. Synthesis failures degrade to text
// only: the reply was already delivered, so the loop simply resumes
// listening. Returns false when ctx ended mid-speech.
func (l *Loop) speak(ctx context.Context, text string) bool {
	speech := sanitizeSpeechText(text)
	if speech == "" {
		return true
	}

	l.setState(StateSynthesizing, "")
	if l.deps.Preempt != nil {
		l.deps.Preempt()
	}

	b64, err := l.deps.Synth.Synthesize(ctx, speech, l.deps.VoiceID)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Printf("voice loop %s: synthesis failed, reply stays text only: %v", l.deps.SessionID, err)
		if l.deps.Metrics != nil {
			l.deps.Metrics.VoiceTurns.WithLabelValues("synth_error").Inc()
			l.deps.Metrics.ProviderErrors.WithLabelValues("tts", "synthesis_failed").Inc()
		}
		return true
	}
	samples, err := DecodePCM16(b64)
	if err != nil {
		log.Printf("voice loop %s: reply audio undecodable: %v", l.deps.SessionID, err)
		return true
	}

	handle, err := l.deps.Scheduler.Play(AudioUnit{Samples: samples, SampleRate: l.deps.SampleRate})
	if err != nil {
		log.Printf("voice loop %s: output device: %v", l.deps.SessionID, err)
		return true
	}
	l.setState(StateSpeaking, "")
	select {
	case <-handle.Done():
	case <-ctx.Done():
		l.deps.Scheduler.Stop(handle)
		return false
	}
	return true
}
