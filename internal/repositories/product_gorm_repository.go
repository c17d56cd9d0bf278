package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/models"
	"storefront/internal/query"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// GetAll retrieves all products with their category.
func (r *GORMProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Preload("Category").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get all products: %w", err)
	}
	return products, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search retrieves the products matching filter, in the requested order.
func (r *GORMProductRepository) Search(ctx context.Context, filter query.ProductFilter) ([]models.Product, error) {
	tx := r.db.WithContext(ctx).Preload("Category")

	if filter.PriceGreaterThan != nil {
		tx = tx.Where("price > ?", *filter.PriceGreaterThan)
	}
	if filter.NameContains != nil {
		tx = tx.Where(`name LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(*filter.NameContains)+"%")
	}
	if filter.Sort != nil {
		col, ok := filter.Sort.Field.Column()
		if !ok {
			return nil, fmt.Errorf("%w: cannot sort by %q", models.ErrValidation, filter.Sort.Field)
		}
		tx = tx.Order(clause.OrderByColumn{
			Column: clause.Column{Table: clause.CurrentTable, Name: col},
			Desc:   filter.Sort.Direction == query.Descending,
		})
	}

	var products []models.Product
	if err := tx.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID.
func (r *GORMProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Preload("Category").First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %d: %w", id, err)
	}
	return &product, nil
}

// Create inserts product after checking its category exists.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := categoryExists(tx, product.CategoryID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(product).Error; err != nil {
			return translateWriteError(err, product.CategoryID)
		}
		return tx.Preload("Category").First(product, product.ID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update writes changes to the product with the given ID.
func (r *GORMProductRepository) Update(ctx context.Context, id uint, changes models.ProductChanges) (*models.Product, *string, error) {
	var (
		product  models.Product
		previous *string
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product with ID %d: %w", id, models.ErrNotFound)
			}
			return err
		}
		previous = product.Picture

		if err := categoryExists(tx, changes.CategoryID); err != nil {
			return err
		}

		picture := product.Picture
		switch {
		case changes.Picture != nil:
			picture = changes.Picture
		case changes.ClearPicture:
			picture = nil
		}

		updates := map[string]interface{}{
			"category_id":   changes.CategoryID,
			"name":          changes.Name,
			"price":         changes.Price,
			"unit_in_stock": changes.UnitInStock,
			"picture":       picture,
		}
		if changes.DescriptionSet {
			updates["description"] = changes.Description
		}
		if err := tx.Model(&product).Updates(updates).Error; err != nil {
			return translateWriteError(err, changes.CategoryID)
		}
		product = models.Product{}
		return tx.Preload("Category").First(&product, id).Error
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return &product, previous, nil
}

// Delete removes the product with the given ID and returns it.
func (r *GORMProductRepository) Delete(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Category").First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product with ID %d: %w", id, models.ErrNotFound)
			}
			return err
		}
		res := tx.Delete(&models.Product{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("product with ID %d: %w", id, models.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	return &product, nil
}

func categoryExists(tx *gorm.DB, categoryID uint) error {
	var count int64
	if err := tx.Model(&models.Category{}).Where("id = ?", categoryID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check category %d: %w", categoryID, err)
	}
	if count == 0 {
		return fmt.Errorf("category with ID %d: %w", categoryID, models.ErrForeignKey)
	}
	return nil
}

// translateWriteError maps a constraint violation raced past categoryExists.
func translateWriteError(err error, categoryID uint) error {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("category with ID %d: %w", categoryID, models.ErrForeignKey)
	}
	return err
}
