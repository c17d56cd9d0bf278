package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/query"
	"storefront/internal/services"
)

// MockProductRepository is a mock implementation of repositories.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) Search(ctx context.Context, filter query.ProductFilter) ([]models.Product, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) Update(ctx context.Context, id uint, changes models.ProductChanges) (*models.Product, *string, error) {
	args := m.Called(ctx, id, changes)
	var updated *models.Product
	if p := args.Get(0); p != nil {
		updated = p.(*models.Product)
	}
	var previous *string
	if p := args.Get(1); p != nil {
		previous = p.(*string)
	}
	return updated, previous, args.Error(2)
}

func (m *MockProductRepository) Delete(ctx context.Context, id uint) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

// MockAssetStore is a mock implementation of storage.AssetStore
type MockAssetStore struct {
	mock.Mock
}

func (m *MockAssetStore) Store(ctx context.Context, field, originalFilename string, r io.Reader) (string, error) {
	args := m.Called(ctx, field, originalFilename, r)
	return args.String(0), args.Error(1)
}

func (m *MockAssetStore) Open(ctx context.Context, storedName string) (io.ReadCloser, string, error) {
	args := m.Called(ctx, storedName)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(io.ReadCloser), args.String(1), args.Error(2)
}

func (m *MockAssetStore) Delete(ctx context.Context, storedName string) error {
	return m.Called(ctx, storedName).Error(0)
}

// MockPublisher is a mock implementation of services.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(exchange, routingKey string, body []byte) error {
	return m.Called(exchange, routingKey, body).Error(0)
}

func strPtr(s string) *string { return &s }

func mangoInput() services.ProductInput {
	return services.ProductInput{
		CategoryID:  1,
		Name:        "Mango",
		Price:       decimal.NewFromInt(50),
		UnitInStock: 10,
	}
}

func newService() (*services.ProductService, *MockProductRepository, *MockAssetStore) {
	repo := new(MockProductRepository)
	assets := new(MockAssetStore)
	return services.NewProductService(repo, assets, zerolog.Nop()), repo, assets
}

func TestProductService_GetAllProducts(t *testing.T) {
	service, repo, _ := newService()
	ctx := context.Background()

	expected := []models.Product{
		{ID: 1, Name: "Mango", Price: decimal.NewFromInt(50), UnitInStock: 10},
		{ID: 2, Name: "Papaya", Price: decimal.NewFromInt(20), UnitInStock: 5},
	}
	repo.On("GetAll", ctx).Return(expected, nil).Once()

	products, err := service.GetAllProducts(ctx)
	assert.NoError(t, err)
	assert.Equal(t, expected, products)
	repo.AssertExpectations(t)
}

func TestProductService_GetProductByID(t *testing.T) {
	service, repo, _ := newService()
	ctx := context.Background()

	expected := &models.Product{ID: 1, Name: "Mango"}
	repo.On("GetByID", ctx, uint(1)).Return(expected, nil).Once()
	product, err := service.GetProductByID(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, expected, product)

	repo.On("GetByID", ctx, uint(99)).Return(nil, models.ErrNotFound).Once()
	product, err = service.GetProductByID(ctx, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Nil(t, product)
	repo.AssertExpectations(t)
}

func TestProductService_SearchProducts(t *testing.T) {
	service, repo, _ := newService()
	ctx := context.Background()

	repo.On("Search", ctx, mock.MatchedBy(func(f query.ProductFilter) bool {
		return f.PriceGreaterThan != nil && f.PriceGreaterThan.Equal(decimal.NewFromInt(100)) &&
			f.NameContains == nil &&
			f.Sort != nil && *f.Sort == query.Sort{Field: query.SortByPrice, Direction: query.Ascending}
	})).Return([]models.Product{{ID: 3}}, nil).Once()

	products, err := service.SearchProducts(ctx, query.SearchParams{Price: "100", Name: "none", SortBy: "price", Order: "asc"})
	require.NoError(t, err)
	assert.Len(t, products, 1)
	repo.AssertExpectations(t)
}

func TestProductService_SearchProductsInvalidParams(t *testing.T) {
	service, repo, _ := newService()

	_, err := service.SearchProducts(context.Background(), query.SearchParams{Price: "NaN"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = service.SearchProducts(context.Background(), query.SearchParams{SortBy: "password", Order: "asc"})
	assert.ErrorIs(t, err, models.ErrValidation)
	repo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestProductService_CreateProductWithoutPicture(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()

	repo.On("Create", ctx, mock.MatchedBy(func(p *models.Product) bool {
		return p.Name == "Mango" && p.CategoryID == 1 && p.UnitInStock == 10 && p.Picture == nil
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Product).ID = 7
	}).Return(nil).Once()

	product, err := service.CreateProduct(ctx, mangoInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint(7), product.ID)
	assert.Nil(t, product.Picture)
	repo.AssertExpectations(t)
	assets.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProductService_CreateProductWithPicture(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()
	content := strings.NewReader("jpeg")

	assets.On("Store", ctx, "picture", "mango.jpg", content).Return("picture-1-2.jpg", nil).Once()
	repo.On("Create", ctx, mock.MatchedBy(func(p *models.Product) bool {
		return p.Picture != nil && *p.Picture == "picture-1-2.jpg"
	})).Return(nil).Once()

	product, err := service.CreateProduct(ctx, mangoInput(), &services.Upload{Field: "picture", Filename: "mango.jpg", Content: content})
	require.NoError(t, err)
	assert.Equal(t, "picture-1-2.jpg", *product.Picture)
	repo.AssertExpectations(t)
	assets.AssertExpectations(t)
}

func TestProductService_CreateProductRemovesFileWhenInsertFails(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()
	content := strings.NewReader("jpeg")

	assets.On("Store", ctx, "picture", "mango.jpg", content).Return("picture-1-2.jpg", nil).Once()
	assets.On("Delete", ctx, "picture-1-2.jpg").Return(nil).Once()
	repo.On("Create", ctx, mock.Anything).Return(models.ErrForeignKey).Once()

	_, err := service.CreateProduct(ctx, mangoInput(), &services.Upload{Field: "picture", Filename: "mango.jpg", Content: content})
	assert.ErrorIs(t, err, models.ErrForeignKey)
	assets.AssertExpectations(t)
}

func TestProductService_CreateProductStorageFailure(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()

	assets.On("Store", ctx, "picture", "mango.jpg", mock.Anything).Return("", models.ErrStorageWrite).Once()

	_, err := service.CreateProduct(ctx, mangoInput(), &services.Upload{Field: "picture", Filename: "mango.jpg", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, models.ErrStorageWrite)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProductService_CreateProductValidation(t *testing.T) {
	service, repo, assets := newService()

	in := mangoInput()
	in.Price = decimal.NewFromInt(-1)
	in.UnitInStock = -3
	in.Name = ""
	in.CategoryID = 0

	_, err := service.CreateProduct(context.Background(), in, &services.Upload{Field: "picture", Filename: "a.jpg", Content: strings.NewReader("x")})
	require.Error(t, err)
	var fieldErrs models.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "price")
	assert.Contains(t, fieldErrs, "unit_in_stock")
	assert.Contains(t, fieldErrs, "name")
	assert.Contains(t, fieldErrs, "category_id")

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assets.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProductService_UpdateProductKeepsPicture(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()

	updated := &models.Product{ID: 7, Name: "Mango", Picture: strPtr("old.jpg")}
	repo.On("Update", ctx, uint(7), mock.MatchedBy(func(c models.ProductChanges) bool {
		return c.Picture == nil && !c.ClearPicture
	})).Return(updated, strPtr("old.jpg"), nil).Once()

	product, err := service.UpdateProduct(ctx, 7, mangoInput(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, "old.jpg", *product.Picture)
	assets.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestProductService_UpdateProductPassesDescriptionPresence(t *testing.T) {
	service, repo, _ := newService()
	ctx := context.Background()

	repo.On("Update", ctx, uint(7), mock.MatchedBy(func(c models.ProductChanges) bool {
		return !c.DescriptionSet && c.Description == nil
	})).Return(&models.Product{ID: 7}, nil, nil).Once()
	repo.On("Update", ctx, uint(7), mock.MatchedBy(func(c models.ProductChanges) bool {
		return c.DescriptionSet && c.Description != nil && *c.Description == "sweet"
	})).Return(&models.Product{ID: 7}, nil, nil).Once()

	_, err := service.UpdateProduct(ctx, 7, mangoInput(), nil, false)
	require.NoError(t, err)

	in := mangoInput()
	in.Description = strPtr("sweet")
	in.DescriptionSet = true
	_, err = service.UpdateProduct(ctx, 7, in, nil, false)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProductService_PriceUpperBound(t *testing.T) {
	service, repo, _ := newService()

	in := mangoInput()
	in.Price = decimal.RequireFromString("10000000000")
	_, err := service.CreateProduct(context.Background(), in, nil)
	var fieldErrs models.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "price")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProductService_UpdateProductReplacesPicture(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()

	assets.On("Store", ctx, "picture", "new.png", mock.Anything).Return("picture-9-9.png", nil).Once()
	assets.On("Delete", ctx, "old.jpg").Return(nil).Once()
	repo.On("Update", ctx, uint(7), mock.MatchedBy(func(c models.ProductChanges) bool {
		return c.Picture != nil && *c.Picture == "picture-9-9.png"
	})).Return(&models.Product{ID: 7, Picture: strPtr("picture-9-9.png")}, strPtr("old.jpg"), nil).Once()

	product, err := service.UpdateProduct(ctx, 7, mangoInput(), &services.Upload{Field: "picture", Filename: "new.png", Content: strings.NewReader("png")}, false)
	require.NoError(t, err)
	assert.Equal(t, "picture-9-9.png", *product.Picture)
	assets.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestProductService_UpdateProductClearsPicture(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()

	assets.On("Delete", ctx, "old.jpg").Return(errors.New("disk gone")).Once()
	repo.On("Update", ctx, uint(7), mock.MatchedBy(func(c models.ProductChanges) bool {
		return c.ClearPicture
	})).Return(&models.Product{ID: 7}, strPtr("old.jpg"), nil).Once()

	product, err := service.UpdateProduct(ctx, 7, mangoInput(), nil, true)
	require.NoError(t, err, "asset cleanup failures are not request failures")
	assert.Nil(t, product.Picture)
	assets.AssertExpectations(t)
}

func TestProductService_UpdateProductNotFoundRemovesNewFile(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()

	assets.On("Store", ctx, "picture", "new.png", mock.Anything).Return("picture-9-9.png", nil).Once()
	assets.On("Delete", ctx, "picture-9-9.png").Return(nil).Once()
	repo.On("Update", ctx, uint(99), mock.Anything).Return(nil, nil, models.ErrNotFound).Once()

	_, err := service.UpdateProduct(ctx, 99, mangoInput(), &services.Upload{Field: "picture", Filename: "new.png", Content: strings.NewReader("png")}, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assets.AssertExpectations(t)
}

func TestProductService_DeleteProduct(t *testing.T) {
	service, repo, assets := newService()
	ctx := context.Background()

	repo.On("Delete", ctx, uint(7)).Return(&models.Product{ID: 7, Picture: strPtr("mango.jpg")}, nil).Once()
	assets.On("Delete", ctx, "mango.jpg").Return(nil).Once()

	deleted, err := service.DeleteProduct(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), deleted.ID)
	assets.AssertExpectations(t)

	repo.On("Delete", ctx, uint(8)).Return(nil, models.ErrNotFound).Once()
	_, err = service.DeleteProduct(ctx, 8)
	assert.ErrorIs(t, err, models.ErrNotFound)
	repo.AssertExpectations(t)
}

func TestProductService_PublishesEvents(t *testing.T) {
	service, repo, assets := newService()
	publisher := new(MockPublisher)
	service.WithPublisher(publisher, "products")
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Product).ID = 7
	}).Return(nil).Once()
	repo.On("Delete", ctx, uint(7)).Return(&models.Product{ID: 7}, nil).Once()

	var created models.ProductEvent
	publisher.On("Publish", "products", models.ProductCreated, mock.Anything).Run(func(args mock.Arguments) {
		require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &created))
	}).Return(nil).Once()
	publisher.On("Publish", "products", models.ProductDeleted, mock.Anything).Return(errors.New("broker down")).Once()

	_, err := service.CreateProduct(ctx, mangoInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProductCreated, created.Type)
	assert.Equal(t, uint(7), created.ProductID)
	assert.Equal(t, "Mango", created.Product.Name)
	assert.NotEmpty(t, created.EventID)

	_, err = service.DeleteProduct(ctx, 7)
	require.NoError(t, err, "publish failures are logged, not returned")

	publisher.AssertExpectations(t)
	assets.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
