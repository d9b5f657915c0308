package domain

import (
	"fmt"
	"time"
)

// GroupKey identifies one album in progress. Either MediaGroupID is set (native album),
// or ChatID and Bucket identify a burst of single media messages from one chat.
type GroupKey struct {
	MediaGroupID string
	ChatID       int64
	Bucket       int64
}

func (k GroupKey) IsNative() bool {
	return k.MediaGroupID != ""
}

func (k GroupKey) String() string {
	if k.IsNative() {
		return "album:" + k.MediaGroupID
	}
	return fmt.Sprintf("burst:%d:%d", k.ChatID, k.Bucket)
}

// KeyFor derives the group key of a media message. The native media group id wins;
// without one, messages of the same chat whose timestamps fall in the same window-wide
// bucket share a key. Bursts straddling a bucket boundary split into two groups.
func KeyFor(msg Message, window time.Duration) GroupKey {
	if msg.MediaGroupID != "" {
		return GroupKey{MediaGroupID: msg.MediaGroupID}
	}
	return GroupKey{ChatID: msg.ChatID, Bucket: TimeBucket(msg.Date, window)}
}

// TimeBucket returns floor(t / window) in nanoseconds.
func TimeBucket(t time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = 1
	}
	n := t.UnixNano()
	w := int64(window)
	b := n / w
	if n%w != 0 && n < 0 {
		b--
	}
	return b
}
