package usecase

import "anon_relay_bot/internal/pkg/relay/domain"

// Normalize converts a photo or video message into a MediaItem.
// Photos use the largest size, which the platform lists last.
func Normalize(msg domain.Message) (domain.MediaItem, error) {
	switch {
	case msg.Photo != nil:
		if len(msg.Photo) == 0 {
			return domain.MediaItem{}, &domain.NormalizationError{MessageID: msg.MessageID, Reason: "photo has no sizes"}
		}
		best := msg.Photo[len(msg.Photo)-1]
		if best.FileID == "" {
			return domain.MediaItem{}, &domain.NormalizationError{MessageID: msg.MessageID, Reason: "photo has no file id"}
		}
		return domain.MediaItem{Kind: domain.MediaPhoto, ContentRef: best.FileID, Caption: msg.Caption}, nil

	case msg.Video != nil:
		if msg.Video.FileID == "" {
			return domain.MediaItem{}, &domain.NormalizationError{MessageID: msg.MessageID, Reason: "video has no file id"}
		}
		return domain.MediaItem{Kind: domain.MediaVideo, ContentRef: msg.Video.FileID, Caption: msg.Caption}, nil

	default:
		return domain.MediaItem{}, &domain.NormalizationError{MessageID: msg.MessageID, Reason: "no photo or video content"}
	}
}
