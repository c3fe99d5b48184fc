// Package pcm turns headerless 16-bit PCM speech payloads into playable sample buffers.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// SpeechSampleRate is the rate of every payload returned by the speech endpoint.
const SpeechSampleRate = 24000

// ErrDecode is matched by every payload decoding failure.
var ErrDecode = errors.New("malformed audio payload")

// DecodeError reports where base64 decoding of a payload failed.
type DecodeError struct {
	Offset int64
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed audio payload at offset %d", e.Offset)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Decode reverses the base64 encoding of a speech payload.
func Decode(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var corrupt base64.CorruptInputError
		if errors.As(err, &corrupt) {
			return nil, &DecodeError{Offset: int64(corrupt)}
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}

// Encode base64-encodes interleaved s16le samples.
func Encode(samples []int16) string {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Buffer holds de-interleaved, normalized samples. It is not modified after creation.
type Buffer struct {
	sampleRate int
	channels   [][]float32
}

// DecodeAudioData interprets data as interleaved signed 16-bit little-endian samples.
// A trailing odd byte and a trailing partial frame are dropped.
func DecodeAudioData(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	samples := len(data) / 2
	frames := samples / channels
	buf := &Buffer{sampleRate: sampleRate, channels: make([][]float32, channels)}
	for ch := 0; ch < channels; ch++ {
		out := make([]float32, frames)
		for i := 0; i < frames; i++ {
			idx := (i*channels + ch) * 2
			out[i] = float32(int16(binary.LittleEndian.Uint16(data[idx:]))) / 32768.0
		}
		buf.channels[ch] = out
	}
	return buf, nil
}

func (b *Buffer) SampleRate() int { return b.sampleRate }

func (b *Buffer) NumChannels() int { return len(b.channels) }

// Frames returns the number of samples in each channel.
func (b *Buffer) Frames() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// Channel returns a copy of the samples of channel ch.
func (b *Buffer) Channel(ch int) []float32 {
	if ch < 0 || ch >= len(b.channels) {
		return nil
	}
	return append([]float32(nil), b.channels[ch]...)
}

// Duration is the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.sampleRate)
}

// Interleaved converts the buffer back to interleaved 16-bit samples.
func (b *Buffer) Interleaved() []int16 {
	frames := b.Frames()
	n := len(b.channels)
	out := make([]int16, frames*n)
	for ch, samples := range b.channels {
		for i, s := range samples {
			out[i*n+ch] = toInt16(s)
		}
	}
	return out
}

func toInt16(s float32) int16 {
	v := s * 32768.0
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	}
	return int16(v)
}
