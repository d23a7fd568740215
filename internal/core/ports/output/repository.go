package ports

import (
	"context"

	"transit-classifier-service/internal/core/domain"
)

// CatalogRepository persists catalog entries together with the hyperparameter
// row of their family.
type CatalogRepository interface {
	// Create inserts the family row and the catalog row in one transaction
	// and returns the new catalog id.
	Create(ctx context.Context, entry domain.NewCatalogEntry) (int64, error)

	// GetByID returns the denormalized entry or domain.ErrModelNotFound.
	GetByID(ctx context.Context, id int64) (*domain.CatalogEntry, error)

	// List returns every entry in insertion order.
	List(ctx context.Context) ([]*domain.CatalogEntry, error)

	// Ping checks connectivity to the backing store
	Ping(ctx context.Context) error
}
