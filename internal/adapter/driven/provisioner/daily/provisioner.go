// Package daily creates short-lived rooms through the Daily REST API.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Wyydra/callctl/internal/core/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const DefaultAPIBase = "https://api.daily.co/v1"

var ErrProvision = errors.New("room provisioning failed")

type Config struct {
	APIBase    string
	APIKey     string
	RoomTTL    time.Duration
	MaxRetries uint64
	// RetryInterval is the first backoff interval.
	RetryInterval time.Duration
	HTTPClient    *http.Client
	Now           func() time.Time
}

type Provisioner struct {
	cfg Config
}

func NewProvisioner(cfg Config) (*Provisioner, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("daily api key is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.RoomTTL <= 0 {
		cfg.RoomTTL = time.Hour
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 250 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provisioner{cfg: cfg}, nil
}

type createRoomRequest struct {
	Properties roomProperties `json:"properties"`
}

type roomProperties struct {
	Exp int64 `json:"exp"`
}

type createRoomResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (p *Provisioner) CreateRoom(ctx context.Context) (domain.RoomURL, error) {
	body, err := json.Marshal(createRoomRequest{
		Properties: roomProperties{Exp: p.cfg.Now().Add(p.cfg.RoomTTL).Unix()},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvision, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryInterval
	bo.Reset()

	var room domain.RoomURL
	attempt := 0
	op := func() error {
		attempt++
		r, err := p.createOnce(ctx, body)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Create room attempt failed")
			return err
		}
		room = r
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.cfg.MaxRetries), ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvision, err)
	}
	return room, nil
}

func (p *Provisioner) createOnce(ctx context.Context, body []byte) (domain.RoomURL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBase+"/rooms", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := fmt.Errorf("daily api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", err
		}
		return "", backoff.Permanent(err)
	}

	var out createRoomResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode create room response: %w", err))
	}
	room, err := domain.ParseRoomURL(out.URL)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return room, nil
}
