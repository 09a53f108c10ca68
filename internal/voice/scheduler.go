package voice

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDeviceUnavailable reports that the audio output device could not accept
// a buffer. Fatal to the current playback request only.
var ErrDeviceUnavailable = errors.New("audio output device unavailable")

// Handle tracks one scheduled buffer. Done is closed exactly once, whether
// playback ran to completion or was stopped, so waiters never hang.
type Handle struct {
	done     chan struct{}
	once     sync.Once
	stopDev  func()
	finished bool
	mu       sync.Mutex
}

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) complete() {
	h.once.Do(func() {
		h.mu.Lock()
		h.finished = true
		h.mu.Unlock()
		close(h.done)
	})
}

// Finished reports whether the completion signal has fired.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Scheduler owns the single audio output device. At most one handle is
// active; starting a new one implicitly stops the previous, which is what
// keeps the read-aloud pipeline and the voice overlay from ever talking over
// each other.
type Scheduler struct {
	mu     sync.Mutex
	device OutputDevice
	active *Handle
}

func NewScheduler(device OutputDevice) *Scheduler {
	return &Scheduler{device: device}
}

// Play begins rendering the unit immediately and returns its handle.
func (s *Scheduler) Play(unit AudioUnit) (*Handle, error) {
	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return nil, ErrDeviceUnavailable
	}
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		s.Stop(prev)
	}

	stop, done, err := s.device.Begin(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	h := &Handle{
		done:    make(chan struct{}),
		stopDev: stop,
	}

	s.mu.Lock()
	s.active = h
	s.mu.Unlock()

	go func() {
		<-done
		h.complete()
		s.mu.Lock()
		if s.active == h {
			s.active = nil
		}
		s.mu.Unlock()
	}()

	return h, nil
}

// Stop halts the handle's rendering. The completion signal fires even when
// the device never reports back.
func (s *Scheduler) Stop(h *Handle) {
	if h == nil {
		return
	}

	s.mu.Lock()
	if s.active == h {
		s.active = nil
	}
	s.mu.Unlock()

	if h.stopDev != nil {
		h.stopDev()
	}
	h.complete()
}

// StopActive halts whatever is currently rendering, if anything.
func (s *Scheduler) StopActive() {
	s.mu.Lock()
	h := s.active
	s.active = nil
	s.mu.Unlock()

	if h == nil {
		return
	}
	if h.stopDev != nil {
		h.stopDev()
	}
	h.complete()
}

// Active reports whether a handle is currently rendering.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
