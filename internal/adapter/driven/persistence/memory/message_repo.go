package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/callctl/internal/core/domain"
)

const DefaultCapacity = 256

// MessageRepository keeps the most recent app messages, oldest dropped first.
type MessageRepository struct {
	mu       sync.Mutex
	capacity int
	messages []domain.AppMessage
}

func NewMessageRepository(capacity int) *MessageRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageRepository{
		capacity: capacity,
		messages: make([]domain.AppMessage, 0, capacity),
	}
}

func (r *MessageRepository) Save(ctx context.Context, msg domain.AppMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == r.capacity {
		copy(r.messages, r.messages[1:])
		r.messages = r.messages[:len(r.messages)-1]
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Recent returns up to limit messages, newest last. limit <= 0 means all.
func (r *MessageRepository) Recent(ctx context.Context, limit int) ([]domain.AppMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(r.messages) {
		start = len(r.messages) - limit
	}
	return append([]domain.AppMessage(nil), r.messages[start:]...), nil
}
