package memory_storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"anon_relay_bot/internal/pkg/journal/domain"
)

const defaultCapacity = 1000

// MemoryStorage keeps the most recent deliveries in memory. Stats cover every delivery since start,
// including the ones already evicted.
type MemoryStorage struct {
	mu         sync.RWMutex
	deliveries []*domain.Delivery
	capacity   int
	stats      domain.Stats
}

func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryStorage{
		deliveries: make([]*domain.Delivery, 0, capacity),
		capacity:   capacity,
	}
}

func (m *MemoryStorage) SaveDelivery(_ context.Context, d *domain.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.deliveries = append(m.deliveries, &cp)
	if len(m.deliveries) > m.capacity {
		m.deliveries = m.deliveries[len(m.deliveries)-m.capacity:]
	}

	switch d.Kind {
	case domain.KindBatch:
		m.stats.Batches++
	case domain.KindSingle:
		m.stats.Singles++
	}
	m.stats.Items += d.ItemCount
	if d.Failed() {
		m.stats.Failures++
	}
	return nil
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (m *MemoryStorage) RecentDeliveries(_ context.Context, limit int) ([]*domain.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.deliveries) {
		limit = len(m.deliveries)
	}
	out := make([]*domain.Delivery, 0, limit)
	for i := len(m.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.deliveries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStorage) DeliveryStats(_ context.Context) (*domain.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	return &s, nil
}
