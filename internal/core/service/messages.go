package service

import (
	"context"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/Wyydra/callctl/internal/core/port"
	"github.com/rs/zerolog/log"
)

// MessageService records peer app messages and passes them on.
type MessageService struct {
	repo port.MessageRepository
	next port.MessageSink
}

func NewMessageService(repo port.MessageRepository, next port.MessageSink) *MessageService {
	return &MessageService{
		repo: repo,
		next: next,
	}
}

func (s *MessageService) AppMessage(msg domain.AppMessage) {
	if err := s.repo.Save(context.Background(), msg); err != nil {
		log.Error().Err(err).Str("from_id", msg.FromID).Msg("Failed to save app message")
	}
	if s.next != nil {
		s.next.AppMessage(msg)
	}
}

func (s *MessageService) Recent(ctx context.Context, limit int) ([]domain.AppMessage, error) {
	return s.repo.Recent(ctx, limit)
}
