package voice

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrOddPCMPayload reports a PCM16 payload that cannot be split into whole
// 16-bit samples.
var ErrOddPCMPayload = errors.New("pcm payload has odd byte length")

// DecodePCM16 converts base64-encoded 16-bit little-endian PCM into
// normalized float32 samples in [-1, 1].
//
// Normalization is asymmetric on purpose: negative samples divide by 32768
// and non-negative ones by 32767, so both int16 extremes map exactly to ±1
// and encode/decode round-trips stay within one quantization step.
func DecodePCM16(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64 pcm: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCMPayload, len(raw))
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		if v < 0 {
			samples[i] = float32(v) / 32768
		} else {
			samples[i] = float32(v) / 32767
		}
	}
	return samples, nil
}

// EncodePCM16 is the inverse of DecodePCM16, used by the mock synthesizer
// and the overlay audio frames.
func EncodePCM16(samples []float32) string {
	return base64.StdEncoding.EncodeToString(PCM16Bytes(samples))
}

// PCM16Bytes converts normalized samples back into raw PCM16LE bytes.
func PCM16Bytes(samples []float32) []byte {
	raw := make([]byte, 2*len(samples))
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		raw[2*i] = byte(uint16(v))
		raw[2*i+1] = byte(uint16(v) >> 8)
	}
	return raw
}
