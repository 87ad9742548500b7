package domain

import (
	"encoding/binary"
	"time"
)

// Clip is a finished microphone capture as little-endian 16-bit PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool {
	return len(c.PCM) == 0
}

// Duration returns the playable length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// WAV wraps the PCM samples in a RIFF/WAVE container.
func (c Clip) WAV() []byte {
	sampleRate := c.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	blockAlign := channels * 2
	dataLen := len(c.PCM)

	out := make([]byte, 44+dataLen)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataLen))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataLen))
	copy(out[44:], c.PCM)
	return out
}
