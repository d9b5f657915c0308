package domain

type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// MediaItem is one entry of an outbound media group. ContentRef is the platform file id,
// reusable for both the anonymous copy and the audit copy.
type MediaItem struct {
	Kind       MediaKind
	ContentRef string
	Caption    string
}
