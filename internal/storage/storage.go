// Package storage persists uploaded product images and resolves their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"path"
	"path/filepath"
	"strings"
	"time"

	"storefront/internal/models"
)

// AssetStore persists uploaded binary content under unique stored names.
type AssetStore interface {
	// Store writes r under a fresh name derived from field and the extension
	// of originalFilename, and returns that name.
	Store(ctx context.Context, field, originalFilename string, r io.Reader) (string, error)
	// Open returns the content of a stored asset and its content type.
	Open(ctx context.Context, storedName string) (io.ReadCloser, string, error)
	// Delete removes a stored asset. Deleting a missing asset is not an error.
	Delete(ctx context.Context, storedName string) error
}

// maxNameAttempts bounds how many fresh names Store draws when a name is taken.
const maxNameAttempts = 3

// Namer produces stored names. Tests swap the clock and random source.
type Namer struct {
	Now  func() time.Time
	Rand func() int64
}

// DefaultNamer uses the wall clock and a random draw in [0, 1e9).
func DefaultNamer() Namer {
	return Namer{
		Now:  time.Now,
		Rand: func() int64 { return rand.Int64N(1_000_000_000) },
	}
}

// Extension returns the text after the last dot of originalFilename's base
// name, so ".jpg" yields "jpg".
func Extension(originalFilename string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(originalFilename, `\`, "/"))
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if ext == "" {
		return "", models.FieldErrors{"picture": fmt.Sprintf("file name %q has no extension", originalFilename)}
	}
	return ext, nil
}

// Name builds <field>-<epochMillis>-<random>.<ext>. Two uploads in the same
// millisecond collide only when the random draws match (about 1 in 1e9); the
// stores detect that case and draw again.
func (n Namer) Name(field, originalFilename string) (string, error) {
	ext, err := Extension(originalFilename)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%d.%s", field, n.Now().UnixMilli(), n.Rand(), ext), nil
}

// validName reports whether storedName is a plain file name, so it cannot
// address anything outside the store.
func validName(storedName string) bool {
	if storedName == "" || storedName == "." || storedName == ".." {
		return false
	}
	return !strings.ContainsAny(storedName, `/\`) && path.Base(storedName) == storedName
}

// PublicURL builds the absolute URL under which a stored asset is served.
// baseURL is the request's scheme://host, prefix the static serving path.
func PublicURL(baseURL, prefix, storedName string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(prefix, "/") + "/" + storedName
}
