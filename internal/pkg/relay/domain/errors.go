package domain

import (
	"errors"
	"fmt"
)

var ErrUnsupportedMedia = errors.New("unsupported media")

// NormalizationError is returned for photo/video messages that cannot be turned into a MediaItem.
// The message is dropped; the album it belongs to is not affected.
type NormalizationError struct {
	MessageID int
	Reason    string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize message %d: %s", e.MessageID, e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	return ErrUnsupportedMedia
}

// SendError wraps a failed outbound call. Op is the Bot API primitive that failed.
type SendError struct {
	Op     string
	ChatID int64
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s to chat %d: %v", e.Op, e.ChatID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
