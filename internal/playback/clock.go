package playback

import (
	"sync"
	"time"

	"github.com/loqalabs/culinascan/internal/pcm"
)

// ClockSink is a virtual device: each voice lasts exactly as long as its buffer.
type ClockSink struct{}

func NewClockSink() *ClockSink { return &ClockSink{} }

func (s *ClockSink) Start(buf *pcm.Buffer) (Voice, error) {
	return newTimedVoice(buf.Duration(), nil), nil
}

// timedVoice finishes after a fixed duration unless stopped first.
type timedVoice struct {
	done   chan struct{}
	once   sync.Once
	timer  *time.Timer
	onStop func()
}

func newTimedVoice(d time.Duration, onStop func()) *timedVoice {
	v := &timedVoice{done: make(chan struct{}), onStop: onStop}
	v.timer = time.AfterFunc(d, v.finish)
	return v
}

func (v *timedVoice) Done() <-chan struct{} { return v.done }

func (v *timedVoice) Stop() error {
	if !v.timer.Stop() {
		return ErrAlreadyStopped
	}
	if v.onStop != nil {
		v.onStop()
	}
	v.finish()
	return nil
}

func (v *timedVoice) finish() {
	v.once.Do(func() { close(v.done) })
}
