package domain

import "time"

const (
	KindBatch  = "batch"
	KindSingle = "single"

	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Delivery records one relayed message or album: where it went and whether each copy arrived.
type Delivery struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	GroupKey          string    `json:"group_key,omitempty"`
	ChatID            int64     `json:"chat_id"`
	SourceMessageID   int       `json:"source_message_id,omitempty"`
	SenderID          int64     `json:"sender_id"`
	SenderUsername    string    `json:"sender_username,omitempty"`
	ItemCount         int       `json:"item_count"`
	DestinationStatus string    `json:"destination_status"`
	AuditStatus       string    `json:"audit_status"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func (d *Delivery) Failed() bool {
	return d.DestinationStatus == StatusFailed || d.AuditStatus == StatusFailed
}

type Stats struct {
	Batches  int `json:"batches"`
	Singles  int `json:"singles"`
	Items    int `json:"items"`
	Failures int `json:"failures"`
}

func StatusOf(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusSuccess
}
