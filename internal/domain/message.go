package domain

import "time"

// PhotoVariant is one resolution-scaled copy of an uploaded photo.
type PhotoVariant struct {
	FileID       string
	FileUniqueID string
	Width        int
	Height       int
	FileSize     int
}

// IncomingMessage is the channel-neutral view of a single inbound chat message.
type IncomingMessage struct {
	ChatID     int64
	SenderID   int64
	SenderName string // first name as shown by the platform
	Text       string
	Command    string // command without the leading slash, empty if not a command
	Photos     []PhotoVariant
	Timestamp  time.Time
}

// HasPhoto reports whether the message carries a photo attachment.
func (m IncomingMessage) HasPhoto() bool {
	return len(m.Photos) > 0
}

// LargestPhoto returns the highest-resolution variant. Telegram orders
// variants smallest to largest, so that is the last one.
func (m IncomingMessage) LargestPhoto() (PhotoVariant, bool) {
	if len(m.Photos) == 0 {
		return PhotoVariant{}, false
	}
	return m.Photos[len(m.Photos)-1], true
}
