package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const roomURLParam = "roomUrl"

var ErrInvalidRoomURL = errors.New("invalid room url")

// RoomURL is the joinable address of a call room.
type RoomURL string

func ParseRoomURL(s string) (RoomURL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomURL)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoomURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRoomURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidRoomURL)
	}
	if strings.Trim(u.Path, "/") == "" {
		return "", fmt.Errorf("%w: missing room name", ErrInvalidRoomURL)
	}
	return RoomURL(s), nil
}

// Name returns the last path segment of the address.
func (r RoomURL) Name() string {
	u, err := url.Parse(string(r))
	if err != nil {
		return ""
	}
	p := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

func (r RoomURL) String() string {
	return string(r)
}

// RoomURLFromPageURL extracts the room address encoded in a page URL.
func RoomURLFromPageURL(page string) (RoomURL, bool) {
	u, err := url.Parse(page)
	if err != nil {
		return "", false
	}
	for key, values := range u.Query() {
		if !strings.EqualFold(key, roomURLParam) || len(values) == 0 {
			continue
		}
		room, err := ParseRoomURL(values[0])
		if err != nil {
			return "", false
		}
		return room, true
	}
	return "", false
}

// PageURLFromRoomURL rewrites page so it carries room, or nothing when room
// is empty.
func PageURLFromRoomURL(page string, room RoomURL) string {
	base := page
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if room == "" {
		return base
	}
	return base + "?" + roomURLParam + "=" + url.QueryEscape(string(room))
}
