package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/validation"
)

// AuthService registers users and issues the tokens that guard catalogue writes.
type AuthService struct {
	userRepo   repositories.UserRepository
	jwtSecret  []byte
	tokenDurat time.Duration
	validate   *validator.Validate
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour,
		validate:   validation.New(),
	}
}

// RegisterUser validates the user, hashes their password and saves them.
func (s *AuthService) RegisterUser(ctx context.Context, user *models.User) error {
	user.ID = ""
	if err := validation.Struct(s.validate, user); err != nil {
		return err
	}

	if _, err := s.userRepo.GetByUsername(ctx, user.Username); err == nil {
		return fmt.Errorf("username '%s' already taken: %w", user.Username, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if _, err := s.userRepo.GetByEmail(ctx, user.Email); err == nil {
		return fmt.Errorf("email '%s' already registered: %w", user.Email, models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashedPassword)

	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

// LoginUser authenticates a user and returns a signed JWT.
func (s *AuthService) LoginUser(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		// do not reveal whether the username exists
		return "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      now.Add(s.tokenDurat).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, models.ErrUnauthorized)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token: %w", models.ErrUnauthorized)
}
