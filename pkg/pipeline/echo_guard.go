package pipeline

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// EchoGuard is a correlation-based secondary check against speaker echo,
// scoped to mono 8kHz narrowband telephony frames. It supplements, and
// never replaces, the flat echo-cancellation timer gate: that gate alone
// can't distinguish "caller spoke right after the agent stopped" from
// "the agent's own audio bounced back through the line", which this catches.
type EchoGuard struct {
	mu        sync.Mutex
	played    *bytes.Buffer
	maxBuf    int
	threshold float64
	lastPlay  time.Time
	window    time.Duration
}

// NewEchoGuard constructs a guard that forgets played audio after window
// has elapsed since the last recorded chunk.
func NewEchoGuard(window time.Duration) *EchoGuard {
	return &EchoGuard{
		played:    new(bytes.Buffer),
		maxBuf:    16000, // 1s of 8kHz mono 16-bit PCM
		threshold: 0.6,
		window:    window,
	}
}

// RecordPlayed appends PCM that was just sent to the carrier, so later
// inbound frames can be correlated against it.
func (g *EchoGuard) RecordPlayed(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.played.Write(pcm)
	g.lastPlay = time.Now()
	if g.played.Len() > g.maxBuf {
		tail := g.played.Bytes()[g.played.Len()-g.maxBuf:]
		trimmed := make([]byte, len(tail))
		copy(trimmed, tail)
		g.played.Reset()
		g.played.Write(trimmed)
	}
}

// IsEcho reports whether frame correlates highly with recently played audio.
func (g *EchoGuard) IsEcho(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.lastPlay) > g.window {
		return false
	}
	ref := g.played.Bytes()
	if len(ref) == 0 {
		return false
	}
	return correlate(frame, ref) > g.threshold
}

// Clear forgets all recorded playback, e.g. on interruption or call close.
func (g *EchoGuard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.played.Reset()
}

func correlate(input, reference []byte) float64 {
	in := bytesToSamples(input)
	ref := bytesToSamples(reference)
	if len(in) == 0 || len(ref) == 0 {
		return 0
	}

	n := len(in)
	if n > len(ref) {
		n = len(ref)
	}
	refTail := ref[len(ref)-n:]

	var dot, inEnergy, refEnergy float64
	for i := 0; i < n; i++ {
		dot += in[i] * refTail[i]
		inEnergy += in[i] * in[i]
		refEnergy += refTail[i] * refTail[i]
	}
	if inEnergy == 0 || refEnergy == 0 {
		return 0
	}
	corr := dot / math.Sqrt(inEnergy*refEnergy)
	if corr < 0 {
		return 0
	}
	return corr
}

func bytesToSamples(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float64(s) / 32768.0
	}
	return out
}
