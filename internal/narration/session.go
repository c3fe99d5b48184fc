// Package narration reads recipes aloud through the single playback controller and
// tracks which recipe card is currently speaking.
package narration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/culinascan/internal/pcm"
	"github.com/loqalabs/culinascan/internal/speech"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Player is the playback surface the session drives.
type Player interface {
	Play(buf *pcm.Buffer, onComplete func()) error
	Stop()
}

type Options struct {
	Voice      string
	SampleRate int
	Channels   int
	Timeout    time.Duration
}

// Session turns text into narration. At most one narration is in flight or audible.
type Session struct {
	synth  speech.Synthesizer
	player Player
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	started  metric.Int64Counter
	failures metric.Int64Counter

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	active *utterance
}

type utterance struct {
	onEnd func()
	once  sync.Once
}

func (u *utterance) end() {
	u.once.Do(func() {
		if u.onEnd != nil {
			u.onEnd()
		}
	})
}

func NewSession(synth speech.Synthesizer, player Player, opts Options, logger *slog.Logger) *Session {
	if opts.SampleRate <= 0 {
		opts.SampleRate = pcm.SpeechSampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	s := &Session{
		synth:  synth,
		player: player,
		opts:   opts,
		logger: logger.With(slog.String("component", "narration")),
		tracer: otel.Tracer("github.com/loqalabs/culinascan/narration"),
	}
	s.initMetrics()
	return s
}

// Speak stops any previous narration, synthesizes text and plays it. onStart runs once
// playback has begun, while the session is locked, so it must not call back into the
// session. onEnd runs when playback completes or is stopped. Synthesis and decode
// failures are logged and leave playback untouched; Speak still returns nil for them.
func (s *Session) Speak(ctx context.Context, text string, onStart, onEnd func()) error {
	if text == "" {
		return errors.New("narration text must not be empty")
	}

	s.mu.Lock()
	prev := s.interruptLocked()
	gen := s.gen
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if prev != nil {
		prev.end()
	}

	reqCtx, span := s.tracer.Start(reqCtx, "narration.speak")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)))

	payload, err := s.synth.Synthesize(reqCtx, speech.Request{Text: text, Voice: s.opts.Voice})
	if err != nil {
		if s.superseded(gen) {
			s.logger.Debug("narration superseded during synthesis")
			return nil
		}
		s.fail(ctx, "synthesis", err)
		span.RecordError(err)
		return nil
	}

	data, err := pcm.Decode(payload)
	if err != nil {
		s.fail(ctx, "decode", err)
		span.RecordError(err)
		return nil
	}
	buf, err := pcm.DecodeAudioData(data, s.opts.SampleRate, s.opts.Channels)
	if err != nil {
		s.fail(ctx, "decode", err)
		span.RecordError(err)
		return nil
	}

	u := &utterance{onEnd: onEnd}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debug("discarding superseded narration")
		return nil
	}
	s.cancel = nil
	if err := s.player.Play(buf, func() { s.finished(u) }); err != nil {
		s.fail(ctx, "playback", err)
		span.RecordError(err)
		return nil
	}
	s.active = u
	s.started.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("audio.duration_ms", buf.Duration().Milliseconds()))
	if onStart != nil {
		onStart()
	}
	return nil
}

// Stop silences the current narration and runs its onEnd. It is safe when idle.
func (s *Session) Stop() {
	s.mu.Lock()
	prev := s.interruptLocked()
	s.mu.Unlock()
	if prev != nil {
		prev.end()
	}
}

func (s *Session) interruptLocked() *utterance {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.player.Stop()
	prev := s.active
	s.active = nil
	return prev
}

func (s *Session) finished(u *utterance) {
	s.mu.Lock()
	if s.active == u {
		s.active = nil
	}
	s.mu.Unlock()
	u.end()
}

func (s *Session) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

func (s *Session) fail(ctx context.Context, stage string, err error) {
	s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	s.logger.Warn("narration failed", slog.String("stage", stage), slogError(err))
}

func (s *Session) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/culinascan/narration")
	var err error
	if s.started, err = meter.Int64Counter("culinascan.narration.started", metric.WithDescription("Narrations that reached playback")); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	if s.failures, err = meter.Int64Counter("culinascan.narration.failures", metric.WithDescription("Narrations that never became audible")); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
