package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/models"
	"storefront/internal/services"
)

// CategoryHandler handles HTTP requests for categories.
type CategoryHandler struct {
	service *services.CategoryService
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(service *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{service: service}
}

// RegisterRoutes registers the category routes. POST runs behind guard when
// it is non-nil.
func (h *CategoryHandler) RegisterRoutes(router fiber.Router, guard fiber.Handler) {
	categoryRoutes := router.Group("/categories")
	categoryRoutes.Get("/", h.HandleGetCategories)
	categoryRoutes.Get("/:id", h.HandleGetCategoryByID)
	categoryRoutes.Post("/", guarded(guard, h.HandleCreateCategory)...)
}

// HandleGetCategories lists all categories.
func (h *CategoryHandler) HandleGetCategories(c *fiber.Ctx) error {
	categories, err := h.service.GetAllCategories(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(categories)
}

// HandleGetCategoryByID returns a single category.
func (h *CategoryHandler) HandleGetCategoryByID(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return models.FieldErrors{"id": "must be a positive integer"}
	}

	category, err := h.service.GetCategoryByID(c.UserContext(), uint(id))
	if err != nil {
		return err
	}
	return c.JSON(category)
}

// HandleCreateCategory creates a category from a JSON or form body.
func (h *CategoryHandler) HandleCreateCategory(c *fiber.Ctx) error {
	var category models.Category
	if err := c.BodyParser(&category); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.CreateCategory(c.UserContext(), &category); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}
