package repositories

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/query"
)

// ProductRepository defines the interface for product data access.
// It is the only component that writes product rows.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	Search(ctx context.Context, filter query.ProductFilter) ([]models.Product, error)
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	// Update applies changes and returns the updated row together with the
	// picture it had before the update.
	Update(ctx context.Context, id uint, changes models.ProductChanges) (*models.Product, *string, error)
	// Delete removes the row and returns it as it was.
	Delete(ctx context.Context, id uint) (*models.Product, error)
}
