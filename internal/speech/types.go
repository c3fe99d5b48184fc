// Package speech requests synthesized narration audio.
package speech

import (
	"context"
	"errors"
)

// ErrNoAudio is returned when the backend answered without an audio payload.
var ErrNoAudio = errors.New("speech response carried no audio")

// Request contains parameters to synthesize speech.
type Request struct {
	Text  string
	Voice string
}

// Synthesizer produces one complete utterance as a base64 encoded s16le payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (string, error)
}
