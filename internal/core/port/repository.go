package port

import (
	"context"

	"github.com/Wyydra/callctl/internal/core/domain"
)

type MessageRepository interface {
	Save(ctx context.Context, msg domain.AppMessage) error
	Recent(ctx context.Context, limit int) ([]domain.AppMessage, error)
}
