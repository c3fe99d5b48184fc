package narration

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/culinascan/internal/protocol"
)

// Publisher is the slice of the bus client used to announce narration changes.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Spotlight is the single shared record of which card is speaking.
type Spotlight struct {
	pub    Publisher
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	speaker string
}

// NewSpotlight returns an empty spotlight. pub may be nil.
func NewSpotlight(pub Publisher, logger *slog.Logger) *Spotlight {
	return &Spotlight{
		pub:    pub,
		logger: logger.With(slog.String("component", "spotlight")),
		clock:  time.Now,
	}
}

// Speaking returns the id of the card that is speaking, or "".
func (s *Spotlight) Speaking() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaker
}

func (s *Spotlight) Is(id string) bool {
	return id != "" && s.Speaking() == id
}

func (s *Spotlight) set(id string) {
	s.mu.Lock()
	s.speaker = id
	s.mu.Unlock()
	s.announce(protocol.SubjectNarrationStarted, protocol.NarrationStatus{CardID: id, Speaking: true})
}

// release clears the spotlight only if id still holds it.
func (s *Spotlight) release(id string) {
	s.mu.Lock()
	if s.speaker == id {
		s.speaker = ""
	}
	s.mu.Unlock()
	s.announce(protocol.SubjectNarrationEnded, protocol.NarrationStatus{CardID: id})
}

func (s *Spotlight) announce(subject string, status protocol.NarrationStatus) {
	if s.pub == nil {
		return
	}
	status.Timestamp = s.clock().UTC()
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to encode narration status", slogError(err))
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish narration status", slog.String("subject", subject), slogError(err))
	}
}

// Card is one recipe card's view of the shared narration state.
type Card struct {
	ID        string
	session   *Session
	spotlight *Spotlight
}

func NewCard(id string, session *Session, spotlight *Spotlight) *Card {
	return &Card{ID: id, session: session, spotlight: spotlight}
}

// Speak narrates text for this card and reports whether playback began.
func (c *Card) Speak(ctx context.Context, text string) (bool, error) {
	started := false
	err := c.session.Speak(ctx, text,
		func() {
			started = true
			c.spotlight.set(c.ID)
		},
		func() {
			c.spotlight.release(c.ID)
		},
	)
	return started, err
}

// Stop silences the session if this card is the one speaking.
func (c *Card) Stop() {
	if c.spotlight.Is(c.ID) {
		c.session.Stop()
	}
}

// Toggle stops this card if it is speaking, otherwise starts it.
func (c *Card) Toggle(ctx context.Context, text string) (bool, error) {
	if c.Speaking() {
		c.Stop()
		return false, nil
	}
	return c.Speak(ctx, text)
}

func (c *Card) Speaking() bool {
	return c.spotlight.Is(c.ID)
}
