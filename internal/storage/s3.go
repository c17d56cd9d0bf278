package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"storefront/internal/models"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps assets as objects under bucket/prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	namer  Namer
	logger zerolog.Logger
}

// NewS3Store loads the default AWS configuration for region and returns a store.
func NewS3Store(ctx context.Context, bucket, region, prefix string, logger zerolog.Logger) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	store := NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger)
	store.logger.Info().Str("bucket", bucket).Str("region", region).Msg("S3 asset store initialised")
	return store, nil
}

// NewS3StoreWithClient wires an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string, logger zerolog.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		namer:  DefaultNamer(),
		logger: logger.With().Str("component", "s3-asset-store").Logger(),
	}
}

// WithNamer replaces the naming source.
func (s *S3Store) WithNamer(n Namer) *S3Store {
	s.namer = n
	return s
}

func (s *S3Store) key(storedName string) string {
	return s.prefix + storedName
}

// Store uploads r. A conditional put (If-None-Match: *) keeps an existing
// object from being overwritten when two names collide.
func (s *S3Store) Store(ctx context.Context, field, originalFilename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read upload: %v", models.ErrStorageWrite, err)
	}
	contentType := mimetype.Detect(data).String()

	var name string
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name, err = s.namer.Name(field, originalFilename)
		if err != nil {
			return "", err
		}
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(name)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
			IfNoneMatch: aws.String("*"),
		})
		if err == nil || !isPreconditionFailed(err) {
			break
		}
		s.logger.Warn().Str("stored_name", name).Msg("stored name already taken, drawing another")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("bucket", s.bucket).Str("key", s.key(name)).Msg("failed to put object")
		return "", fmt.Errorf("%w: put %s: %v", models.ErrStorageWrite, name, err)
	}
	return name, nil
}

// Open streams an object.
func (s *S3Store) Open(ctx context.Context, storedName string) (io.ReadCloser, string, error) {
	if !validName(storedName) {
		return nil, "", fmt.Errorf("asset %q: %w", storedName, models.ErrNotFound)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(storedName)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", fmt.Errorf("asset %q: %w", storedName, models.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to get object %s: %w", storedName, err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

// Delete removes an object. S3 treats deleting a missing key as success.
func (s *S3Store) Delete(ctx context.Context, storedName string) error {
	if !validName(storedName) {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(storedName)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", storedName, err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}
