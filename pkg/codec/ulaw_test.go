package codec

import (
	"encoding/binary"
	"math"
	"testing"
)

func samplesToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestEncodeUlawLength(t *testing.T) {
	pcm := samplesToPCM([]int16{0, 100, -100, 32000, -32000})
	enc := EncodeUlaw(pcm)
	if len(enc) != 5 {
		t.Fatalf("expected one byte per sample, got %d bytes for %d samples", len(enc), 5)
	}
}

func TestUlawSilenceByte(t *testing.T) {
	pcm := samplesToPCM([]int16{0})
	enc := EncodeUlaw(pcm)
	if enc[0] != silenceByte {
		t.Fatalf("expected silence byte 0xFF for zero sample, got 0x%02X", enc[0])
	}
}

func TestUlawRoundTripWithinQuantizationError(t *testing.T) {
	samples := make([]int16, 0, 2000)
	for i := 0; i < 2000; i++ {
		samples = append(samples, int16(30000*math.Sin(float64(i)*0.05)))
	}
	pcm := samplesToPCM(samples)

	enc := EncodeUlaw(pcm)
	dec := DecodeUlaw(enc)

	if len(dec) != len(pcm) {
		t.Fatalf("round trip changed length: in=%d out=%d", len(pcm), len(dec))
	}

	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(dec[2*i:]))
		diff := int(want) - int(got)
		if diff < 0 {
			diff = -diff
		}
		// μ-law is logarithmic; error grows with amplitude. 4% of full scale
		// is a generous bound that still catches a broken codec.
		if diff > 1500 {
			t.Fatalf("sample %d: round trip error too large: want %d got %d (diff %d)", i, want, got, diff)
		}
	}
}

func TestEncodeUlawOddLengthIgnoresTrailingByte(t *testing.T) {
	pcm := append(samplesToPCM([]int16{42}), 0x01)
	enc := EncodeUlaw(pcm)
	if len(enc) != 1 {
		t.Fatalf("expected trailing odd byte to be ignored, got %d bytes", len(enc))
	}
}

func TestDecodeUlawEmpty(t *testing.T) {
	if out := DecodeUlaw(nil); len(out) != 0 {
		t.Fatalf("expected empty output for empty input, got %d bytes", len(out))
	}
}

func TestSilenceUlaw(t *testing.T) {
	s := SilenceUlaw(160)
	if len(s) != 160 {
		t.Fatalf("expected 160 bytes, got %d", len(s))
	}
	for _, b := range s {
		if b != 0xFF {
			t.Fatalf("expected all silence bytes to be 0xFF")
		}
	}
}
