package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"storefront/internal/models"
	"storefront/internal/services"
	"storefront/internal/validation"
)

// AuthHandler handles HTTP requests for registration and login.
type AuthHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validation.New(),
		logger:      logger.With().Str("handler", "auth").Logger(),
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/registers")
	authRoutes.Post("/", h.HandleRegister)
	authRoutes.Post("/login", h.HandleLogin)
}

// HandleRegister handles new user registration.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var user models.User
	if err := c.BodyParser(&user); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.authService.RegisterUser(c.UserContext(), &user); err != nil {
		return err
	}
	h.logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")

	// never return the password hash
	user.Password = ""
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    user,
	})
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// HandleLogin handles user login and issues a JWT token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(h.validate, req); err != nil {
		return err
	}

	token, err := h.authService.LoginUser(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
	})
}
