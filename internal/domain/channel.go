package domain

import "context"

// Messenger is the outbound side of a chat platform as seen by message handlers.
type Messenger interface {
	// SendText delivers text to a chat. An empty parseMode sends plain text.
	SendText(ctx context.Context, chatID int64, text string, parseMode string) error
	// FileURL resolves an opaque file ID into a transient download URL.
	FileURL(ctx context.Context, fileID string) (string, error)
}
