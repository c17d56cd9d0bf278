package models

import (
	"errors"
	"sort"
	"strings"
)

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf
// and the HTTP boundary maps them to status codes with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrForeignKey   = errors.New("referenced record does not exist")
	ErrStorageWrite = errors.New("asset storage write failed")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error codes returned in ErrorResponse.Error.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeForeignKey   = "FOREIGN_KEY_ERROR"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRequest      = "REQUEST_ERROR"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	RequestID string            `json:"requestId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// FieldErrors collects per-field validation failures. It matches ErrValidation.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e FieldErrors) Is(target error) bool {
	return target == ErrValidation
}
