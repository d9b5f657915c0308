package models

import "time"

// APIResponse mirrors the Bot API response envelope.
type APIResponse struct {
	Ok          bool   `json:"ok"`
	Result      any    `json:"result,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// InputMedia is one element of the media parameter of sendMediaGroup.
type InputMedia struct {
	Type    string `json:"type"`
	Media   string `json:"media"`
	Caption string `json:"caption,omitempty"`
}

// Call is a recorded outbound request made by the bot.
type Call struct {
	Method     string       `json:"method"`
	ChatID     int64        `json:"chat_id"`
	FromChatID int64        `json:"from_chat_id,omitempty"`
	MessageID  int          `json:"message_id,omitempty"`
	Text       string       `json:"text,omitempty"`
	File       string       `json:"file,omitempty"`
	Caption    string       `json:"caption,omitempty"`
	Media      []InputMedia `json:"media,omitempty"`
	At         time.Time    `json:"at"`
}
