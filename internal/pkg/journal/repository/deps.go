package repository

import (
	"context"

	"anon_relay_bot/internal/pkg/journal/domain"
)

type DeliveryRepository interface {
	SaveDelivery(ctx context.Context, d *domain.Delivery) error
	RecentDeliveries(ctx context.Context, limit int) ([]*domain.Delivery, error)
	DeliveryStats(ctx context.Context) (*domain.Stats, error)
}
