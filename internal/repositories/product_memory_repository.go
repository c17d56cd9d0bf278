package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/query"
)

// InMemoryProductRepository is an in-memory implementation of ProductRepository.
// Only categories registered with AddCategory can be referenced.
type InMemoryProductRepository struct {
	products   map[uint]models.Product
	categories map[uint]models.Category
	nextID     uint
	mu         sync.RWMutex
}

// NewInMemoryProductRepository creates a new instance of InMemoryProductRepository.
func NewInMemoryProductRepository() *InMemoryProductRepository {
	return &InMemoryProductRepository{
		products:   make(map[uint]models.Product),
		categories: make(map[uint]models.Category),
		nextID:     1,
	}
}

// AddCategory makes category available as a product category.
func (r *InMemoryProductRepository) AddCategory(category models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[category.ID] = category
}

func (r *InMemoryProductRepository) withCategory(p models.Product) models.Product {
	if c, ok := r.categories[p.CategoryID]; ok {
		p.Category = &c
	}
	return p
}

func (r *InMemoryProductRepository) sorted() []models.Product {
	list := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		list = append(list, r.withCategory(p))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// GetAll returns all products ordered by ID.
func (r *InMemoryProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sorted(), nil
}

// Search filters and orders products the same way the SQL implementation does.
// Name matching is case-sensitive.
func (r *InMemoryProductRepository) Search(ctx context.Context, filter query.ProductFilter) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Product
	for _, p := range r.sorted() {
		if filter.PriceGreaterThan != nil && !p.Price.GreaterThan(*filter.PriceGreaterThan) {
			continue
		}
		if filter.NameContains != nil && !strings.Contains(p.Name, *filter.NameContains) {
			continue
		}
		result = append(result, p)
	}

	if filter.Sort != nil {
		less, err := lessFunc(filter.Sort.Field)
		if err != nil {
			return nil, err
		}
		desc := filter.Sort.Direction == query.Descending
		sort.SliceStable(result, func(i, j int) bool {
			if desc {
				return less(result[j], result[i])
			}
			return less(result[i], result[j])
		})
	}
	return result, nil
}

func lessFunc(field query.SortField) (func(a, b models.Product) bool, error) {
	switch field {
	case query.SortByID:
		return func(a, b models.Product) bool { return a.ID < b.ID }, nil
	case query.SortByName:
		return func(a, b models.Product) bool { return a.Name < b.Name }, nil
	case query.SortByPrice:
		return func(a, b models.Product) bool { return a.Price.LessThan(b.Price) }, nil
	case query.SortByUnitInStock:
		return func(a, b models.Product) bool { return a.UnitInStock < b.UnitInStock }, nil
	}
	return nil, fmt.Errorf("%w: cannot sort by %q", models.ErrValidation, field)
}

// GetByID returns a product by its ID.
func (r *InMemoryProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %d: %w", id, models.ErrNotFound)
	}
	product = r.withCategory(product)
	return &product, nil
}

// Create adds a new product and assigns its ID.
func (r *InMemoryProductRepository) Create(ctx context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.categories[product.CategoryID]; !ok {
		return fmt.Errorf("failed to create product: category with ID %d: %w", product.CategoryID, models.ErrForeignKey)
	}
	now := time.Now()
	product.ID = r.nextID
	product.CreatedAt = now
	product.UpdatedAt = now
	product.Category = nil
	r.nextID++
	r.products[product.ID] = *product
	*product = r.withCategory(*product)
	return nil
}

// Update modifies an existing product.
func (r *InMemoryProductRepository) Update(ctx context.Context, id uint, changes models.ProductChanges) (*models.Product, *string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return nil, nil, fmt.Errorf("failed to update product %d: %w", id, models.ErrNotFound)
	}
	if _, ok := r.categories[changes.CategoryID]; !ok {
		return nil, nil, fmt.Errorf("failed to update product %d: category with ID %d: %w", id, changes.CategoryID, models.ErrForeignKey)
	}

	previous := product.Picture
	product.CategoryID = changes.CategoryID
	product.Name = changes.Name
	product.Price = changes.Price
	if changes.DescriptionSet {
		product.Description = changes.Description
	}
	product.UnitInStock = changes.UnitInStock
	switch {
	case changes.Picture != nil:
		product.Picture = changes.Picture
	case changes.ClearPicture:
		product.Picture = nil
	}
	product.UpdatedAt = time.Now()
	r.products[id] = product

	updated := r.withCategory(product)
	return &updated, previous, nil
}

// Delete removes a product by its ID.
func (r *InMemoryProductRepository) Delete(ctx context.Context, id uint) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("failed to delete product %d: %w", id, models.ErrNotFound)
	}
	delete(r.products, id)
	product = r.withCategory(product)
	return &product, nil
}
