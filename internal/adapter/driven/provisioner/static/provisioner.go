// Package static hands out a fixed room, for demos against a room that
// already exists.
package static

import (
	"context"

	"github.com/Wyydra/callctl/internal/core/domain"
)

type Provisioner struct {
	room domain.RoomURL
	err  error
}

func NewProvisioner(room string) (*Provisioner, error) {
	r, err := domain.ParseRoomURL(room)
	if err != nil {
		return nil, err
	}
	return &Provisioner{room: r}, nil
}

// NewFailingProvisioner always fails with err.
func NewFailingProvisioner(err error) *Provisioner {
	return &Provisioner{err: err}
}

func (p *Provisioner) CreateRoom(ctx context.Context) (domain.RoomURL, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.err != nil {
		return "", p.err
	}
	return p.room, nil
}
