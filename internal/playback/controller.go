// Package playback owns the single active audio source of the runtime.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/culinascan/internal/pcm"
)

// ErrAlreadyStopped is returned by a Voice that has already finished or been stopped.
var ErrAlreadyStopped = errors.New("voice already stopped")

// Sink is an audio output that can start playing a buffer immediately.
type Sink interface {
	Start(buf *pcm.Buffer) (Voice, error)
}

// Voice is one buffer being played by a Sink.
type Voice interface {
	// Done is closed when the voice stops producing sound, naturally or not.
	Done() <-chan struct{}
	Stop() error
}

const (
	statePlaying int32 = iota + 1
	stateCompleted
	stateStopped
)

type handle struct {
	voice      Voice
	onComplete func()
	state      atomic.Int32
}

// Controller plays at most one buffer at a time.
type Controller struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	active *handle
}

func NewController(sink Sink, logger *slog.Logger) *Controller {
	return &Controller{
		sink:   sink,
		logger: logger.With(slog.String("component", "playback")),
	}
}

// Play stops whatever is playing and starts buf. onComplete runs once, on its own
// goroutine, if buf plays to the end.
func (c *Controller) Play(buf *pcm.Buffer, onComplete func()) error {
	if buf == nil {
		return errors.New("playback buffer is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	voice, err := c.sink.Start(buf)
	if err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	h := &handle{voice: voice, onComplete: onComplete}
	h.state.Store(statePlaying)
	c.active = h
	go c.watch(h)

	c.logger.Debug("playback started",
		slog.Int("frames", buf.Frames()),
		slog.Duration("duration", buf.Duration()))
	return nil
}

// Stop silences the active voice, if any. It never runs onComplete.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Active reports whether a voice is currently playing.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (c *Controller) stopLocked() {
	h := c.active
	if h == nil {
		return
	}
	c.active = nil
	if !h.state.CompareAndSwap(statePlaying, stateStopped) {
		return
	}
	if err := h.voice.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
		c.logger.Warn("failed to stop voice", slogError(err))
	}
	c.logger.Debug("playback stopped")
}

func (c *Controller) watch(h *handle) {
	<-h.voice.Done()

	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()

	if h.state.CompareAndSwap(statePlaying, stateCompleted) && h.onComplete != nil {
		h.onComplete()
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
