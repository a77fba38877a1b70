package monitor

import (
	"context"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

// ProductStore abstracts the storage layer for products, history and users.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	InsertHistory(ctx context.Context, h models.PriceHistory) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertProduct(ctx context.Context, p models.Product, userID string) (*models.Product, bool, error)
	SaveRunState(ctx context.Context, state models.RunState) error
}

// AlertSender abstracts the notification layer.
type AlertSender interface {
	Send(ctx context.Context, user models.User, alert models.Alert) error
}
