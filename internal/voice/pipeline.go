package voice

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lectern-ai/lectern/internal/observability"
)

// PlaybackStatus is the externally visible state of a message's playback.
type PlaybackStatus string

const (
	PlaybackIdle    PlaybackStatus = "idle"
	PlaybackLoading PlaybackStatus = "loading"
	PlaybackPlaying PlaybackStatus = "playing"
	PlaybackStopped PlaybackStatus = "stopped"
	PlaybackFailed  PlaybackStatus = "failed"
)

// playbackRequest is one "speak this message" request. It is owned by the
// goroutine processing it; all shared fields are guarded by the pipeline
// mutex and gated on the request token.
type playbackRequest struct {
	token     int64
	messageID string
	chunks    []Chunk
	cursor    int
	status    PlaybackStatus
	handle    *Handle
	cancel    context.CancelFunc
	startedAt time.Time
}

// Pipeline drives the sequential fetch, decode and play cycle for one
// message at a time.
//
// Cancellation is cooperative: in-flight synthesis calls cannot be aborted
// mid-flight, so every resumption point re-checks that the request token is
// still current before committing any side effect. A superseded request's
// results are discarded on arrival, never acted upon.
type Pipeline struct {
	synth      Synthesizer
	sched      *Scheduler
	metrics    *observability.Metrics
	voiceID    string
	chunkBound int
	sampleRate int

	mu          sync.Mutex
	nextToken   int64
	active      *playbackRequest
	lastFailure map[string]string
}

func NewPipeline(synth Synthesizer, sched *Scheduler, metrics *observability.Metrics, voiceID string, chunkBound, sampleRate int) *Pipeline {
	if chunkBound <= 0 {
		chunkBound = DefaultChunkBound
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Pipeline{
		synth:       synth,
		sched:       sched,
		metrics:     metrics,
		voiceID:     voiceID,
		chunkBound:  chunkBound,
		sampleRate:  sampleRate,
		lastFailure: make(map[string]string),
	}
}

// PlayMessage toggles playback for a message. Invoking it while the same
// message is loading or playing stops it; invoking it for a different
// message supersedes whatever was active. The returned status is the
// externally visible state right after the call.
func (p *Pipeline) PlayMessage(ctx context.Context, messageID, text string) PlaybackStatus {
	p.mu.Lock()

	if p.active != nil && p.active.messageID == messageID &&
		(p.active.status == PlaybackLoading || p.active.status == PlaybackPlaying) {
		p.stopActiveLocked()
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.PlaybackRequests.WithLabelValues("stopped").Inc()
		}
		return PlaybackIdle
	}

	p.stopActiveLocked()
	delete(p.lastFailure, messageID)

	chunks := ChunkSpeakableText(text, p.chunkBound)
	if len(chunks) == 0 {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.PlaybackRequests.WithLabelValues("empty").Inc()
		}
		return PlaybackIdle
	}

	p.nextToken++
	reqCtx, cancel := context.WithCancel(ctx)
	req := &playbackRequest{
		token:     p.nextToken,
		messageID: messageID,
		chunks:    chunks,
		status:    PlaybackLoading,
		cancel:    cancel,
		startedAt: time.Now(),
	}
	p.active = req
	p.mu.Unlock()

	go p.run(reqCtx, req)
	return PlaybackLoading
}

// Status reports the externally visible playback state for a message.
func (p *Pipeline) Status(messageID string) PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil || p.active.messageID != messageID {
		return PlaybackIdle
	}
	switch p.active.status {
	case PlaybackLoading, PlaybackPlaying:
		return p.active.status
	default:
		return PlaybackIdle
	}
}

// LastFailure returns the failure detail recorded for a message, if its most
// recent playback attempt failed.
func (p *Pipeline) LastFailure(messageID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	detail, ok := p.lastFailure[messageID]
	return detail, ok
}

// StopAll halts any active request. The voice overlay calls this before it
// takes the output device.
func (p *Pipeline) StopAll() {
	p.mu.Lock()
	p.stopActiveLocked()
	p.mu.Unlock()
}

// stopActiveLocked invalidates the active request's token and halts its
// audio. Callers hold p.mu.
func (p *Pipeline) stopActiveLocked() {
	req := p.active
	if req == nil {
		return
	}
	req.status = PlaybackStopped
	p.active = nil

	handle := req.handle
	req.handle = nil

	// cancel and Stop never block, so they are safe under the lock.
	req.cancel()
	if handle != nil {
		p.sched.Stop(handle)
	}
}

// stillCurrent reports whether req has not been superseded or stopped. Every
// suspension point in run is bracketed by this check.
func (p *Pipeline) stillCurrent(req *playbackRequest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && p.active.token == req.token
}

func (p *Pipeline) run(ctx context.Context, req *playbackRequest) {
	firstChunkObserved := false

	for i := range req.chunks {
		chunk := req.chunks[i]

		if !p.setPhase(req, i, PlaybackLoading, nil) {
			return
		}

		fetchStart := time.Now()
		b64, err := p.synth.Synthesize(ctx, chunk.Text, p.voiceID)
		if !p.stillCurrent(req) {
			return
		}
		if err != nil {
			p.fail(req, "synthesis failed: "+err.Error())
			return
		}
		p.observeStage(observability.StageSynthFetch, time.Since(fetchStart))

		decodeStart := time.Now()
		samples, err := DecodePCM16(b64)
		if !p.stillCurrent(req) {
			return
		}
		if err != nil {
			p.fail(req, "pcm decode failed: "+err.Error())
			return
		}
		p.observeStage(observability.StagePCMDecode, time.Since(decodeStart))

		handle, err := p.sched.Play(AudioUnit{Samples: samples, SampleRate: p.sampleRate})
		if err != nil {
			p.fail(req, "device failed: "+err.Error())
			return
		}
		if !p.setPhase(req, i, PlaybackPlaying, handle) {
			// Superseded between decode and play: silence the buffer we just started.
			p.sched.Stop(handle)
			return
		}

		if !firstChunkObserved {
			firstChunkObserved = true
			if p.metrics != nil {
				p.metrics.ObserveFirstChunkLatency(time.Since(req.startedAt))
			}
		}

		playStart := time.Now()
		select {
		case <-handle.Done():
		case <-ctx.Done():
			return
		}
		if !p.stillCurrent(req) {
			return
		}
		p.observeStage(observability.StageChunkPlay, time.Since(playStart))
		if p.metrics != nil {
			p.metrics.PlaybackChunks.WithLabelValues("played").Inc()
		}
	}

	p.mu.Lock()
	if p.active != nil && p.active.token == req.token {
		req.status = PlaybackIdle
		p.active = nil
	}
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.PlaybackRequests.WithLabelValues("completed").Inc()
	}
}

// setPhase moves the request into the given phase, recording the cursor and
// scheduler handle. Returns false when the request is no longer current.
func (p *Pipeline) setPhase(req *playbackRequest, cursor int, status PlaybackStatus, handle *Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil || p.active.token != req.token {
		return false
	}
	req.cursor = cursor
	req.status = status
	req.handle = handle
	return true
}

func (p *Pipeline) fail(req *playbackRequest, detail string) {
	p.mu.Lock()
	if p.active == nil || p.active.token != req.token {
		p.mu.Unlock()
		return
	}
	req.status = PlaybackFailed
	p.active = nil
	p.lastFailure[req.messageID] = detail
	p.mu.Unlock()

	req.cancel()
	log.Printf("playback: message %s chunk %d: %s", req.messageID, req.cursor, detail)
	if p.metrics != nil {
		p.metrics.PlaybackRequests.WithLabelValues("failed").Inc()
		p.metrics.PlaybackChunks.WithLabelValues("failed").Inc()
	}
}

func (p *Pipeline) observeStage(stage string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObservePlaybackStage(stage, d)
	}
}
