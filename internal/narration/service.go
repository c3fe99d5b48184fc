package narration

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/loqalabs/culinascan/internal/bus"
	"github.com/loqalabs/culinascan/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service lets bus clients such as kitchen displays drive narration.
type Service struct {
	bus       *bus.Client
	session   *Session
	spotlight *Spotlight
	subs      []*nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewService(parent context.Context, busClient *bus.Client, session *Session, spotlight *Spotlight, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		bus:       busClient,
		session:   session,
		spotlight: spotlight,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.With(slog.String("component", "narration-service")),
	}
}

func (s *Service) Start() error {
	for subject, handler := range map[string]nats.MsgHandler{
		protocol.SubjectNarrationRequest: s.handleRequest,
		protocol.SubjectNarrationStop:    s.handleStop,
	} {
		sub, err := s.bus.Subscribe(subject, handler)
		if err != nil {
			s.Close()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return len(s.subs) > 0 }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.NarrationRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode narration request", slogError(err))
		return
	}
	if req.CardID == "" || req.Text == "" {
		s.logger.Warn("ignoring incomplete narration request", slog.String("card_id", req.CardID))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		card := NewCard(req.CardID, s.session, s.spotlight)
		if _, err := card.Speak(s.ctx, req.Text); err != nil {
			s.logger.Warn("narration request failed", slog.String("card_id", req.CardID), slogError(err))
		}
	}()
}

func (s *Service) handleStop(msg *nats.Msg) {
	var req protocol.NarrationStop
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.logger.Warn("failed to decode narration stop", slogError(err))
			return
		}
	}
	if req.CardID == "" {
		s.session.Stop()
		return
	}
	NewCard(req.CardID, s.session, s.spotlight).Stop()
}
