package httpapi

import (
	"errors"
	"sync"
)

// ErrNoAudioSink reports that no overlay client is connected to receive
// rendered audio.
var ErrNoAudioSink = errors.New("no audio sink connected")

// AudioBridge routes rendered PCM frames to whichever overlay websocket is
// currently attached. At most one sink is held; a new connection replaces
// the previous one.
type AudioBridge struct {
	mu   sync.Mutex
	gen  int
	sink func(pcm []byte, sampleRate int) error
}

func NewAudioBridge() *AudioBridge { return &AudioBridge{} }

// SetSink attaches a sink and returns its generation, used to detach safely.
func (b *AudioBridge) SetSink(sink func(pcm []byte, sampleRate int) error) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.sink = sink
	return b.gen
}

// ClearSink detaches the sink only if its generation is still current, so a
// stale disconnect cannot tear down a newer connection.
func (b *AudioBridge) ClearSink(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen == gen {
		b.sink = nil
	}
}

func (b *AudioBridge) Emit(pcm []byte, sampleRate int) error {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	if sink == nil {
		return ErrNoAudioSink
	}
	return sink(pcm, sampleRate)
}
