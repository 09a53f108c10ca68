package voice

import "context"

// Synthesizer is the remote text-to-speech service. The result is
// base64-encoded mono PCM16LE at the fixed service sample rate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (string, error)
}

type RecognizerEventType string

const (
	RecognizerEventStart  RecognizerEventType = "start"
	RecognizerEventResult RecognizerEventType = "result"
	RecognizerEventEnd    RecognizerEventType = "end"
	RecognizerEventError  RecognizerEventType = "error"
)

// RecognizerEvent is the discriminated union consumed by the conversation
// loop, independent of how the underlying engine delivers events.
type RecognizerEvent struct {
	Type    RecognizerEventType
	Text    string
	IsFinal bool
	Code    string
	Detail  string
}

// Recognizer is a single-utterance speech recognition engine. After every
// end event the caller must Start again to keep listening.
type Recognizer interface {
	Start(ctx context.Context) error
	Events() <-chan RecognizerEvent
	Close() error
}

// AudioUnit is one decoded chunk ready for the output device. It is consumed
// exactly once and discarded.
type AudioUnit struct {
	Samples    []float32
	SampleRate int
}

// OutputDevice renders one mono sample buffer. Begin returns a stop function
// that halts rendering early and a channel closed when rendering finishes or
// is halted. The scheduler is the only caller and serializes access.
type OutputDevice interface {
	Begin(unit AudioUnit) (stop func(), done <-chan struct{}, err error)
}
