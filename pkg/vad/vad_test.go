package vad

import (
	"encoding/binary"
	"math"
	"testing"
)

func toneFrame(freq float64, amplitude int16, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(float64(amplitude) * math.Sin(2*math.Pi*freq*float64(i)/8000))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func silenceFrame(n int) []byte {
	return make([]byte, n*2)
}

func TestRMSSilenceIsZero(t *testing.T) {
	if rms := RMS(silenceFrame(160)); rms != 0 {
		t.Fatalf("expected 0 RMS for silence, got %f", rms)
	}
}

func TestEnergyDetectsToneAsSpeech(t *testing.T) {
	d := NewEnergy(1, 0.015)
	frame := toneFrame(300, 12000, 160)
	if !d.IsSpeech(frame) {
		t.Fatalf("expected a loud 300Hz tone to register as speech at aggressiveness 1, RMS=%f", RMS(frame))
	}
}

func TestEnergyRejectsSilence(t *testing.T) {
	d := NewEnergy(1, 0.015)
	if d.IsSpeech(silenceFrame(160)) {
		t.Fatal("silence must never register as speech")
	}
}

func TestHigherAggressivenessIsStricter(t *testing.T) {
	quiet := toneFrame(300, 900, 160)
	lenient := NewEnergy(1, 0.015)
	strict := NewEnergy(3, 0.015)

	if !lenient.IsSpeech(quiet) {
		t.Skip("tone too quiet for this environment's threshold; adjust amplitude")
	}
	if strict.IsSpeech(quiet) {
		t.Fatal("aggressiveness 3 should reject audio aggressiveness 1 accepts")
	}
}

func TestAggressivenessClamped(t *testing.T) {
	d := NewEnergy(9, 0.015)
	if d.aggressiveness != 3 {
		t.Fatalf("expected aggressiveness clamped to 3, got %d", d.aggressiveness)
	}
	d2 := NewEnergy(0, 0.015)
	if d2.aggressiveness != 1 {
		t.Fatalf("expected aggressiveness clamped to 1, got %d", d2.aggressiveness)
	}
}
