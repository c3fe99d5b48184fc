package speech

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/loqalabs/culinascan/internal/pcm"
)

type mockSynth struct {
	sampleRate int
	perWord    time.Duration
}

// NewMockSynth answers with a quiet tone lasting perWord for every word of the text.
func NewMockSynth(sampleRate int, perWord time.Duration) Synthesizer {
	if perWord <= 0 {
		perWord = 60 * time.Millisecond
	}
	return &mockSynth{sampleRate: sampleRate, perWord: perWord}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	words := len(strings.Fields(req.Text))
	if words == 0 {
		return "", ErrNoAudio
	}
	frames := int(math.Round(m.perWord.Seconds()*float64(m.sampleRate))) * words
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(4000 * math.Sin(2*math.Pi*440*float64(i)/float64(m.sampleRate)))
	}
	return pcm.Encode(samples), nil
}
