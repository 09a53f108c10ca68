package voice

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
)

func TestDecodePCM16KnownSamples(t *testing.T) {
	// int16 LE: 0, 32767, -32768, -1
	raw := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80, 0xff, 0xff}
	samples, err := DecodePCM16(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("DecodePCM16 error: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("len = %d, want 4", len(samples))
	}
	want := []float32{0, 1, -1, -1.0 / 32768}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodePCM16OddLength(t *testing.T) {
	_, err := DecodePCM16(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	if !errors.Is(err, ErrOddPCMPayload) {
		t.Fatalf("err = %v, want ErrOddPCMPayload", err)
	}
}

func TestDecodePCM16RejectsBadBase64(t *testing.T) {
	if _, err := DecodePCM16("not@base64!"); err == nil {
		t.Fatalf("expected base64 decode error")
	}
}

func TestPCM16RoundTripWithinQuantizationStep(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.999, -0.999, 1, -1, 0.0001, -0.0001}
	out, err := DecodePCM16(EncodePCM16(in))
	if err != nil {
		t.Fatalf("DecodePCM16 error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	const step = 1.0 / 32768
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > step {
			t.Fatalf("sample %d: round trip drift %v exceeds %v (in=%v out=%v)", i, diff, step, in[i], out[i])
		}
	}
}

func TestPCM16BytesLength(t *testing.T) {
	raw := PCM16Bytes(make([]float32, 7))
	if len(raw) != 14 {
		t.Fatalf("len = %d, want 14", len(raw))
	}
}
