package voice

import (
	"errors"
	"sync"
	"time"
)

// StreamDevice is an output device that pushes PCM frames to a remote sink
// (the overlay websocket) and models render time from the sample count: the
// buffer is "done" when its wall-clock duration has elapsed. Stop cancels the
// timer so a halted buffer completes immediately.
type StreamDevice struct {
	mu   sync.Mutex
	emit func(pcm []byte, sampleRate int) error
}

// NewStreamDevice builds a device around an emit function. A nil emit means
// the sink is gone; Begin then fails.
func NewStreamDevice(emit func(pcm []byte, sampleRate int) error) *StreamDevice {
	return &StreamDevice{emit: emit}
}

// Detach disconnects the sink. Subsequent Begin calls fail.
func (d *StreamDevice) Detach() {
	d.mu.Lock()
	d.emit = nil
	d.mu.Unlock()
}

func (d *StreamDevice) Begin(unit AudioUnit) (func(), <-chan struct{}, error) {
	d.mu.Lock()
	emit := d.emit
	d.mu.Unlock()

	if emit == nil {
		return nil, nil, errors.New("no audio sink attached")
	}
	if unit.SampleRate <= 0 {
		return nil, nil, errors.New("sample rate must be positive")
	}

	if err := emit(PCM16Bytes(unit.Samples), unit.SampleRate); err != nil {
		return nil, nil, err
	}

	duration := time.Duration(len(unit.Samples)) * time.Second / time.Duration(unit.SampleRate)
	done := make(chan struct{})
	var once sync.Once
	timer := time.AfterFunc(duration, func() {
		once.Do(func() { close(done) })
	})
	stop := func() {
		timer.Stop()
		once.Do(func() { close(done) })
	}
	return stop, done, nil
}
