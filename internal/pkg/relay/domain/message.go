package domain

import "time"

type Sender struct {
	ID        int64
	FirstName string
	Username  string // without the leading "@", empty when the user has none
}

type PhotoSize struct {
	FileID   string
	Width    int
	Height   int
	FileSize int
}

type Video struct {
	FileID   string
	FileName string
	MimeType string
}

// Message is an inbound chat message as seen by the relay, independent of the transport library.
type Message struct {
	MessageID    int
	ChatID       int64
	Sender       Sender
	Date         time.Time
	MediaGroupID string
	Photo        []PhotoSize // sizes in ascending order, the last one is the largest
	Video        *Video
	Caption      string
	Text         string
	Command      string // bot command without the slash, empty for regular messages
}

// HasVisualMedia reports whether the message carries photo or video content and therefore
// goes through album aggregation.
func (m Message) HasVisualMedia() bool {
	return m.Photo != nil || m.Video != nil
}
