package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestPipeline(synth Synthesizer, dev OutputDevice, bound int) *Pipeline {
	return NewPipeline(synth, NewScheduler(dev), nil, "test-voice", bound, 24000)
}

func TestPipelinePlaysChunksSequentially(t *testing.T) {
	synth := NewMockSynthesizer()
	dev := newManualDevice()
	p := newTestPipeline(synth, dev, 10)

	// Bound 10 forces one chunk per sentence.
	status := p.PlayMessage(context.Background(), "msg-1", "Alpha one. Bravo two. Delta three.")
	if status != PlaybackLoading {
		t.Fatalf("status = %q, want loading", status)
	}

	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 1 })
	if got := synth.Calls(); len(got) != 1 || got[0] != "Alpha one." {
		t.Fatalf("calls = %v, want first chunk only", got)
	}
	if p.Status("msg-1") != PlaybackPlaying {
		t.Fatalf("status = %q, want playing", p.Status("msg-1"))
	}

	dev.complete(0)
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 2 })
	dev.complete(1)
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 3 })
	dev.complete(2)

	waitUntil(t, time.Second, func() bool { return p.Status("msg-1") == PlaybackIdle })
	want := []string{"Alpha one.", "Bravo two.", "Delta three."}
	got := synth.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineToggleStopsSameMessage(t *testing.T) {
	synth := NewMockSynthesizer()
	dev := newManualDevice()
	p := newTestPipeline(synth, dev, 10)

	p.PlayMessage(context.Background(), "msg-1", "Alpha one. Bravo two. Delta three.")
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 1 })

	if got := p.PlayMessage(context.Background(), "msg-1", "Alpha one. Bravo two. Delta three."); got != PlaybackIdle {
		t.Fatalf("toggle returned %q, want idle", got)
	}
	if p.Status("msg-1") != PlaybackIdle {
		t.Fatalf("status after toggle = %q, want idle", p.Status("msg-1"))
	}
	waitUntil(t, time.Second, func() bool { return dev.wasStopped(0) })

	// Nothing further may be fetched or rendered after the stop.
	time.Sleep(30 * time.Millisecond)
	if got := synth.Calls(); len(got) != 1 {
		t.Fatalf("calls after stop = %v, want the single pre-stop fetch", got)
	}
	if dev.beginCount() != 1 {
		t.Fatalf("device begun %d buffers, want 1", dev.beginCount())
	}
}

func TestPipelineFailureHaltsRemainingChunks(t *testing.T) {
	synth := NewMockSynthesizer()
	synth.FailOn("Bravo two.", errors.New("upstream 500"))
	dev := newManualDevice()
	p := newTestPipeline(synth, dev, 10)

	p.PlayMessage(context.Background(), "msg-1", "Alpha one. Bravo two. Delta three.")
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 1 })
	dev.complete(0)

	waitUntil(t, time.Second, func() bool {
		_, failed := p.LastFailure("msg-1")
		return failed
	})
	detail, _ := p.LastFailure("msg-1")
	if !strings.Contains(detail, "upstream 500") {
		t.Fatalf("failure detail = %q, want the provider error", detail)
	}
	if p.Status("msg-1") != PlaybackIdle {
		t.Fatalf("status after failure = %q, want idle", p.Status("msg-1"))
	}

	time.Sleep(30 * time.Millisecond)
	for _, call := range synth.Calls() {
		if call == "Delta three." {
			t.Fatalf("chunk after the failed one was fetched")
		}
	}
	if dev.beginCount() != 1 {
		t.Fatalf("device begun %d buffers, want 1", dev.beginCount())
	}
}

func TestPipelineEmptyTextIsImmediateNoOp(t *testing.T) {
	synth := NewMockSynthesizer()
	dev := newManualDevice()
	p := newTestPipeline(synth, dev, 10)

	if got := p.PlayMessage(context.Background(), "msg-1", "   \n"); got != PlaybackIdle {
		t.Fatalf("status = %q, want idle", got)
	}
	time.Sleep(20 * time.Millisecond)
	if len(synth.Calls()) != 0 {
		t.Fatalf("empty text must not reach the synthesizer")
	}
}

func TestPipelineNewMessageSupersedesActive(t *testing.T) {
	synth := NewMockSynthesizer()
	dev := newManualDevice()
	p := newTestPipeline(synth, dev, 10)

	p.PlayMessage(context.Background(), "msg-1", "Alpha one. Bravo two.")
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 1 })

	if got := p.PlayMessage(context.Background(), "msg-2", "Gamma ray."); got != PlaybackLoading {
		t.Fatalf("status = %q, want loading", got)
	}
	waitUntil(t, time.Second, func() bool { return dev.wasStopped(0) })
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 2 })

	if p.Status("msg-1") != PlaybackIdle {
		t.Fatalf("old message status = %q, want idle", p.Status("msg-1"))
	}
	if p.Status("msg-2") != PlaybackPlaying {
		t.Fatalf("new message status = %q, want playing", p.Status("msg-2"))
	}

	dev.complete(1)
	waitUntil(t, time.Second, func() bool { return p.Status("msg-2") == PlaybackIdle })
}

func TestPipelineStopAllSilencesDevice(t *testing.T) {
	synth := NewMockSynthesizer()
	dev := newManualDevice()
	p := newTestPipeline(synth, dev, 10)

	p.PlayMessage(context.Background(), "msg-1", "Alpha one. Bravo two.")
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 1 })

	p.StopAll()
	waitUntil(t, time.Second, func() bool { return dev.wasStopped(0) })
	if p.Status("msg-1") != PlaybackIdle {
		t.Fatalf("status after StopAll = %q, want idle", p.Status("msg-1"))
	}
}

func TestPipelineRetryAfterFailureClearsFailure(t *testing.T) {
	synth := NewMockSynthesizer()
	synth.FailOn("Alpha one.", errors.New("transient"))
	dev := newManualDevice()
	p := newTestPipeline(synth, dev, 10)

	p.PlayMessage(context.Background(), "msg-1", "Alpha one.")
	waitUntil(t, time.Second, func() bool {
		_, failed := p.LastFailure("msg-1")
		return failed
	})

	synth.FailOn("Alpha one.", nil)
	p.PlayMessage(context.Background(), "msg-1", "Alpha one.")
	if _, failed := p.LastFailure("msg-1"); failed {
		t.Fatalf("failure record must be cleared by a fresh request")
	}
	waitUntil(t, time.Second, func() bool { return dev.beginCount() == 1 })
	dev.complete(0)
	waitUntil(t, time.Second, func() bool { return p.Status("msg-1") == PlaybackIdle })
}
