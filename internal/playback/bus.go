package playback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/culinascan/internal/pcm"
	"github.com/loqalabs/culinascan/internal/protocol"
)

// Publisher is the slice of the bus client the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// BusSink streams buffers to edge speakers over the bus and plays them out on the clock.
type BusSink struct {
	pub           Publisher
	target        string
	chunkDuration time.Duration
	logger        *slog.Logger
}

func NewBusSink(pub Publisher, target string, chunkDuration time.Duration, logger *slog.Logger) *BusSink {
	if chunkDuration <= 0 {
		chunkDuration = 400 * time.Millisecond
	}
	return &BusSink{
		pub:           pub,
		target:        target,
		chunkDuration: chunkDuration,
		logger:        logger.With(slog.String("component", "bus-sink")),
	}
}

func (s *BusSink) Start(buf *pcm.Buffer) (Voice, error) {
	utterance := uuid.NewString()
	samples := buf.Interleaved()
	step := int(math.Round(s.chunkDuration.Seconds()*float64(buf.SampleRate()))) * buf.NumChannels()
	if step <= 0 {
		step = len(samples)
	}

	subject := protocol.SubjectPlaybackAudioPrefix + "." + s.target
	sequence := 0
	for offset := 0; offset < len(samples) || sequence == 0; offset += step {
		end := offset + step
		if end > len(samples) {
			end = len(samples)
		}
		chunk := protocol.AudioChunk{
			Target:     s.target,
			Utterance:  utterance,
			Sequence:   sequence,
			SampleRate: buf.SampleRate(),
			Channels:   buf.NumChannels(),
			PCM:        toBytes(samples[offset:end]),
			Final:      end == len(samples),
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, err
		}
		if err := s.pub.Publish(subject, data); err != nil {
			return nil, fmt.Errorf("publish audio chunk: %w", err)
		}
		sequence++
	}

	return newTimedVoice(buf.Duration(), func() { s.publishStop(utterance) }), nil
}

func (s *BusSink) publishStop(utterance string) {
	msg := protocol.PlaybackControl{
		Target:    s.target,
		Utterance: utterance,
		Action:    protocol.PlaybackActionStop,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.pub.Publish(protocol.SubjectPlaybackControlPrefix+"."+s.target, data); err != nil {
		s.logger.Warn("failed to publish stop", slogError(err))
	}
}

func toBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}
