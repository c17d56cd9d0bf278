package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
	"storefront/internal/query"
	"storefront/internal/repositories"
	"storefront/internal/storage"
	"storefront/internal/validation"
)

// Publisher sends an event body to an exchange. *rabbitmq.Client satisfies it.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// ProductInput holds the writable product fields after parsing.
type ProductInput struct {
	CategoryID  uint            `json:"category_id" validate:"required,gt=0"`
	Name        string          `json:"name" validate:"required,max=255"`
	Price       decimal.Decimal `json:"price" validate:"gte=0,lte=9999999999.99"`
	Description *string         `json:"description" validate:"omitempty,max=2000"`
	UnitInStock int             `json:"unit_in_stock" validate:"gte=0"`

	// DescriptionSet reports whether the request carried a description at all.
	// Updates without one keep the stored description.
	DescriptionSet bool `json:"-"`
}

// Upload is a file accompanying a create or update request.
type Upload struct {
	Field    string
	Filename string
	Content  io.Reader
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo      repositories.ProductRepository
	assets    storage.AssetStore
	publisher Publisher
	exchange  string
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, assets storage.AssetStore, logger zerolog.Logger) *ProductService {
	return &ProductService{
		repo:     repo,
		assets:   assets,
		validate: validation.New(),
		logger:   logger.With().Str("component", "product-service").Logger(),
	}
}

// WithPublisher enables lifecycle events on exchange.
func (s *ProductService) WithPublisher(p Publisher, exchange string) *ProductService {
	s.publisher = p
	s.exchange = exchange
	return s
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.GetAll(ctx)
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id uint) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// SearchProducts builds a filter from raw parameters and runs it.
func (s *ProductService) SearchProducts(ctx context.Context, params query.SearchParams) ([]models.Product, error) {
	filter, err := query.Build(params)
	if err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, filter)
}

// CreateProduct stores the optional upload, then inserts the row. If the
// insert fails the uploaded file is removed again.
func (s *ProductService) CreateProduct(ctx context.Context, in ProductInput, upload *Upload) (*models.Product, error) {
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}

	picture, err := s.storeUpload(ctx, upload)
	if err != nil {
		return nil, err
	}

	product := &models.Product{
		CategoryID:  in.CategoryID,
		Name:        in.Name,
		Price:       in.Price,
		Description: in.Description,
		UnitInStock: in.UnitInStock,
		Picture:     picture,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		s.discardAsset(ctx, picture, "product insert failed")
		return nil, err
	}

	s.logger.Info().Uint("product_id", product.ID).Bool("has_picture", picture != nil).Msg("product created")
	s.publish(models.ProductCreated, product)
	return product, nil
}

// UpdateProduct replaces the writable fields of product id. The picture is
// kept unless a new upload is supplied or clearPicture is set; a replaced or
// cleared picture is deleted from the asset store after the row is written.
func (s *ProductService) UpdateProduct(ctx context.Context, id uint, in ProductInput, upload *Upload, clearPicture bool) (*models.Product, error) {
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}

	picture, err := s.storeUpload(ctx, upload)
	if err != nil {
		return nil, err
	}

	updated, previous, err := s.repo.Update(ctx, id, models.ProductChanges{
		CategoryID:   in.CategoryID,
		Name:         in.Name,
		Price:        in.Price,
		Description:    in.Description,
		DescriptionSet: in.DescriptionSet,
		UnitInStock:    in.UnitInStock,
		Picture:        picture,
		ClearPicture:   clearPicture,
	})
	if err != nil {
		s.discardAsset(ctx, picture, "product update failed")
		return nil, err
	}

	if previous != nil && (updated.Picture == nil || *updated.Picture != *previous) {
		s.discardAsset(ctx, previous, "picture replaced")
	}

	s.logger.Info().Uint("product_id", id).Bool("picture_replaced", picture != nil).Msg("product updated")
	s.publish(models.ProductUpdated, updated)
	return updated, nil
}

// DeleteProduct deletes a product and then its picture.
func (s *ProductService) DeleteProduct(ctx context.Context, id uint) (*models.Product, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.discardAsset(ctx, deleted.Picture, "product deleted")

	s.logger.Info().Uint("product_id", id).Msg("product deleted")
	s.publish(models.ProductDeleted, deleted)
	return deleted, nil
}

func (s *ProductService) storeUpload(ctx context.Context, upload *Upload) (*string, error) {
	if upload == nil {
		return nil, nil
	}
	name, err := s.assets.Store(ctx, upload.Field, upload.Filename, upload.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", upload.Field, err)
	}
	return &name, nil
}

// discardAsset removes a stored file. Failures leave an orphan behind and
// are only logged.
func (s *ProductService) discardAsset(ctx context.Context, storedName *string, reason string) {
	if storedName == nil {
		return
	}
	if err := s.assets.Delete(ctx, *storedName); err != nil {
		s.logger.Warn().Err(err).Str("stored_name", *storedName).Str("reason", reason).Msg("failed to delete asset, file is orphaned")
		return
	}
	s.logger.Debug().Str("stored_name", *storedName).Str("reason", reason).Msg("asset deleted")
}

func (s *ProductService) publish(eventType string, product *models.Product) {
	if s.publisher == nil {
		return
	}

	event := models.ProductEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		ProductID:  product.ID,
		Product:    *product,
		OccurredAt: time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal product event")
		return
	}
	if err := s.publisher.Publish(s.exchange, eventType, body); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Uint("product_id", product.ID).Msg("failed to publish product event")
	}
}
