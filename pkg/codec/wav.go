package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// WrapWAV wraps raw little-endian 16-bit mono PCM in a canonical WAV
// container. Some STT/TTS collaborators require WAV rather than bare PCM.
func WrapWAV(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(44 + len(pcm))

	const (
		bitsPerSample = 16
		channels      = 1
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// ErrNotWAV is returned by UnwrapWAV when the input lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("codec: not a WAV container")

// UnwrapWAV extracts the raw PCM payload from a canonical WAV container
// produced by a TTS collaborator. It walks the RIFF chunks after the header,
// skipping any that are not "data", and returns the body of the first
// "data" chunk, cut short at the end of the input if its declared size
// overruns it.
func UnwrapWAV(wav []byte) ([]byte, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}
	off := 12
	for off+8 <= len(wav) {
		chunkID := string(wav[off : off+4])
		chunkSize := binary.LittleEndian.Uint32(wav[off+4 : off+8])
		bodyStart := off + 8
		if chunkID == "data" {
			end := bodyStart + int(chunkSize)
			if end > len(wav) {
				end = len(wav)
			}
			return wav[bodyStart:end], nil
		}
		off = bodyStart + int(chunkSize)
		if chunkSize%2 == 1 {
			off++ // chunks are word-aligned
		}
	}
	return nil, ErrNotWAV
}
