package handlers

import (
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
	"storefront/internal/query"
	"storefront/internal/services"
	"storefront/internal/storage"
)

const (
	pictureField = "picture"
	// prices are stored as decimal(12,2)
	priceScale = 2
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service   *services.ProductService
	urlPrefix string
	logger    zerolog.Logger
}

// NewProductHandler creates a new ProductHandler. urlPrefix is the path the
// asset handler serves pictures under.
func NewProductHandler(service *services.ProductService, urlPrefix string, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		service:   service,
		urlPrefix: urlPrefix,
		logger:    logger.With().Str("handler", "product").Logger(),
	}
}

// RegisterRoutes registers the product routes. Write routes run behind guard
// when it is non-nil.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, guard fiber.Handler) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleGetProducts)
	// registered before /:id so "search" is never read as an id
	productRoutes.Get("/search/:price/:name/:sortBy/:order", h.HandleSearchProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)

	productRoutes.Post("/", guarded(guard, h.HandleCreateProduct)...)
	productRoutes.Put("/:id", guarded(guard, h.HandleUpdateProduct)...)
	productRoutes.Delete("/:id", guarded(guard, h.HandleDeleteProduct)...)
}

func guarded(guard, next fiber.Handler) []fiber.Handler {
	if guard == nil {
		return []fiber.Handler{next}
	}
	return []fiber.Handler{guard, next}
}

// HandleGetProducts lists every product with its category and picture URL.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.service.GetAllProducts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(h.withPictureURLs(c, products))
}

// HandleSearchProducts filters by minimum price and name fragment and sorts.
// Any segment may be "none".
func (h *ProductHandler) HandleSearchProducts(c *fiber.Ctx) error {
	params := query.SearchParams{
		Price:  pathParam(c, "price"),
		Name:   pathParam(c, "name"),
		SortBy: pathParam(c, "sortBy"),
		Order:  pathParam(c, "order"),
	}

	products, err := h.service.SearchProducts(c.UserContext(), params)
	if err != nil {
		return err
	}
	return c.JSON(h.withPictureURLs(c, products))
}

// HandleGetProductByID returns a single product.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	product, err := h.service.GetProductByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(h.withPictureURL(c, product))
}

// HandleCreateProduct creates a product from a multipart form with an
// optional picture file.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	form, err := parseProductForm(c)
	if err != nil {
		return err
	}
	if form.RemovePicture {
		return models.FieldErrors{"remove_picture": "only allowed when updating"}
	}

	upload, closeUpload, err := openUpload(form.Picture)
	if err != nil {
		return err
	}
	defer closeUpload()

	product, err := h.service.CreateProduct(c.UserContext(), form.Input, upload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(h.withPictureURL(c, product))
}

// HandleUpdateProduct replaces the product's fields. The stored picture is
// kept unless a new file is sent or remove_picture is true.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	form, err := parseProductForm(c)
	if err != nil {
		return err
	}

	upload, closeUpload, err := openUpload(form.Picture)
	if err != nil {
		return err
	}
	defer closeUpload()

	product, err := h.service.UpdateProduct(c.UserContext(), id, form.Input, upload, form.RemovePicture)
	if err != nil {
		return err
	}
	return c.JSON(h.withPictureURL(c, product))
}

// HandleDeleteProduct deletes a product and returns it.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	product, err := h.service.DeleteProduct(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(h.withPictureURL(c, product))
}

func (h *ProductHandler) withPictureURL(c *fiber.Ctx, product *models.Product) *models.Product {
	product.PictureURL = nil
	if product.Picture != nil {
		u := storage.PublicURL(c.BaseURL(), h.urlPrefix, *product.Picture)
		product.PictureURL = &u
	}
	return product
}

func (h *ProductHandler) withPictureURLs(c *fiber.Ctx, products []models.Product) []models.Product {
	for i := range products {
		h.withPictureURL(c, &products[i])
	}
	return products
}

// ProductForm is the parsed multipart body of a create or update request.
type ProductForm struct {
	Input         services.ProductInput
	Picture       *multipart.FileHeader
	RemovePicture bool
}

// parseProductForm reads the text fields and the optional picture file.
// Every unparseable field is reported, not just the first.
func parseProductForm(c *fiber.Ctx) (*ProductForm, error) {
	form := &ProductForm{}
	fieldErrs := models.FieldErrors{}

	if v := strings.TrimSpace(c.FormValue("category_id")); v == "" {
		fieldErrs["category_id"] = "is required"
	} else if id, err := strconv.ParseUint(v, 10, 64); err != nil || id == 0 {
		fieldErrs["category_id"] = "must be a positive integer"
	} else {
		form.Input.CategoryID = uint(id)
	}

	form.Input.Name = utils.CopyString(strings.TrimSpace(c.FormValue("name")))

	if v := strings.TrimSpace(c.FormValue("price")); v == "" {
		fieldErrs["price"] = "is required"
	} else if price, err := decimal.NewFromString(v); err != nil {
		fieldErrs["price"] = "must be a decimal number"
	} else if !price.Equal(price.Round(priceScale)) {
		fieldErrs["price"] = "must have at most 2 decimal places"
	} else {
		form.Input.Price = price
	}

	mf, mfErr := c.MultipartForm()
	if mfErr != nil {
		mf = nil
	}

	// an absent description leaves the stored one alone; an empty one clears it
	if hasFormField(c, mf, "description") {
		form.Input.DescriptionSet = true
		if v := c.FormValue("description"); v != "" {
			v = utils.CopyString(v)
			form.Input.Description = &v
		}
	}

	if v := strings.TrimSpace(c.FormValue("unit_in_stock")); v == "" {
		fieldErrs["unit_in_stock"] = "is required"
	} else if n, err := strconv.Atoi(v); err != nil {
		fieldErrs["unit_in_stock"] = "must be an integer"
	} else {
		form.Input.UnitInStock = n
	}

	if v := strings.TrimSpace(c.FormValue("remove_picture")); v != "" {
		remove, err := strconv.ParseBool(v)
		if err != nil {
			fieldErrs["remove_picture"] = "must be true or false"
		}
		form.RemovePicture = remove
	}

	// a plain urlencoded body has no multipart form and so no file
	if mf != nil {
		if files := mf.File[pictureField]; len(files) > 0 {
			form.Picture = files[0]
		}
	}
	if form.Picture != nil && form.RemovePicture {
		fieldErrs["remove_picture"] = "cannot be combined with a new picture"
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return form, nil
}

// hasFormField reports whether key was sent at all, even with an empty value.
func hasFormField(c *fiber.Ctx, mf *multipart.Form, key string) bool {
	if mf != nil {
		_, ok := mf.Value[key]
		return ok
	}
	return c.Request().PostArgs().Has(key)
}

// openUpload opens fh for streaming into the asset store. The returned
// close func is always safe to call.
func openUpload(fh *multipart.FileHeader) (*services.Upload, func(), error) {
	if fh == nil {
		return nil, func() {}, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, fiber.NewError(fiber.StatusBadRequest, "unreadable picture upload")
	}
	return &services.Upload{Field: pictureField, Filename: fh.Filename, Content: f}, func() { f.Close() }, nil
}

func productID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, models.FieldErrors{"id": "must be a positive integer"}
	}
	return uint(id), nil
}

// pathParam returns the unescaped route parameter so names with spaces or
// non-ASCII letters match.
func pathParam(c *fiber.Ctx, key string) string {
	raw := utils.CopyString(c.Params(key))
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
