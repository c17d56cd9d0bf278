package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// CategoryRepository defines the interface for category data access.
type CategoryRepository interface {
	GetAll(ctx context.Context) ([]models.Category, error)
	GetByID(ctx context.Context, id uint) (*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
}

// GORMCategoryRepository is a GORM implementation of CategoryRepository.
type GORMCategoryRepository struct {
	db *gorm.DB
}

// NewGORMCategoryRepository creates a new instance of GORMCategoryRepository.
func NewGORMCategoryRepository(db *gorm.DB) *GORMCategoryRepository {
	return &GORMCategoryRepository{db: db}
}

// GetAll retrieves all categories ordered by ID.
func (r *GORMCategoryRepository) GetAll(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.db.WithContext(ctx).Order("id").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("failed to get all categories: %w", err)
	}
	return categories, nil
}

// GetByID retrieves a category by its ID.
func (r *GORMCategoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("category with ID %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get category by ID %d: %w", id, err)
	}
	return &category, nil
}

// Create inserts a category. Names are unique.
func (r *GORMCategoryRepository) Create(ctx context.Context, category *models.Category) error {
	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("category %q: %w", category.Name, models.ErrConflict)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}
