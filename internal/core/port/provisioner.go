package port

import (
	"context"

	"github.com/Wyydra/callctl/internal/core/domain"
)

type RoomProvisioner interface {
	CreateRoom(ctx context.Context) (domain.RoomURL, error)
}
