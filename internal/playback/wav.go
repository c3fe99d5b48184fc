package playback

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/culinascan/internal/pcm"
)

// WAVSink renders every buffer to a WAV file, then plays it out on the clock.
type WAVSink struct {
	dir   string
	seq   atomic.Int64
	clock func() time.Time
}

func NewWAVSink(dir string) (*WAVSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("wav sink directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wav output dir: %w", err)
	}
	return &WAVSink{dir: dir, clock: time.Now}, nil
}

func (s *WAVSink) Start(buf *pcm.Buffer) (Voice, error) {
	name := fmt.Sprintf("narration-%s-%04d.wav", s.clock().UTC().Format("20060102T150405"), s.seq.Add(1))
	if err := WriteWAV(filepath.Join(s.dir, name), buf); err != nil {
		return nil, err
	}
	return newTimedVoice(buf.Duration(), nil), nil
}

// WriteWAV stores buf as a 16-bit PCM WAV file at path.
func WriteWAV(path string, buf *pcm.Buffer) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()

	samples := buf.Interleaved()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: buf.NumChannels(), SampleRate: buf.SampleRate()},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, buf.SampleRate(), 16, buf.NumChannels(), 1)
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
