package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"storefront/internal/storage"
)

// AssetHandler serves stored pictures from whichever asset store is configured.
type AssetHandler struct {
	store storage.AssetStore
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(store storage.AssetStore) *AssetHandler {
	return &AssetHandler{store: store}
}

// RegisterRoutes serves GET <prefix>/:name.
func (h *AssetHandler) RegisterRoutes(router fiber.Router, prefix string) {
	router.Get(prefix+"/:name", h.HandleGetAsset)
}

// HandleGetAsset streams a stored asset with its content type.
func (h *AssetHandler) HandleGetAsset(c *fiber.Ctx) error {
	body, contentType, err := h.store.Open(c.UserContext(), utils.CopyString(c.Params("name")))
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	// fiber closes body once the response is written
	return c.SendStream(body)
}
