package port

import "github.com/Wyydra/callctl/internal/core/domain"

// AddressBar mirrors the shareable page address. Replacements never add a
// history entry.
type AddressBar interface {
	ReplaceURL(pageURL string)
}

// SessionObserver is called from the controller loop and must not block.
type SessionObserver interface {
	SessionChanged(s domain.Snapshot)
}

type MessageSink interface {
	AppMessage(msg domain.AppMessage)
}
