package services

import (
	"context"

	"github.com/go-playground/validator/v10"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/validation"
)

// CategoryService handles business logic related to categories.
type CategoryService struct {
	repo     repositories.CategoryRepository
	validate *validator.Validate
}

// NewCategoryService creates a new CategoryService.
func NewCategoryService(repo repositories.CategoryRepository) *CategoryService {
	return &CategoryService{
		repo:     repo,
		validate: validation.New(),
	}
}

// GetAllCategories retrieves all categories.
func (s *CategoryService) GetAllCategories(ctx context.Context) ([]models.Category, error) {
	return s.repo.GetAll(ctx)
}

// GetCategoryByID retrieves a single category by its ID.
func (s *CategoryService) GetCategoryByID(ctx context.Context, id uint) (*models.Category, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateCategory validates and stores a new category.
func (s *CategoryService) CreateCategory(ctx context.Context, category *models.Category) error {
	category.ID = 0
	if err := validation.Struct(s.validate, category); err != nil {
		return err
	}
	return s.repo.Create(ctx, category)
}
