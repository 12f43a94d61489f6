package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/promotion-consumer/internal/gcs"
)

// Re-export interface from shared package
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage through one shared client.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a storage client. An empty credentialsFile
// uses Application Default Credentials.
func NewGCSStorageService(ctx context.Context, credentialsFile string) (*GCSStorageService, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: creating storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close closes the underlying client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// WriteObject delegates to WriteObjectWithClient.
func (s *GCSStorageService) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	return WriteObjectWithClient(ctx, s.client, bucket, object, contentType, data)
}

// ReadObject delegates to ReadObjectWithClient.
func (s *GCSStorageService) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	return ReadObjectWithClient(ctx, s.client, uri)
}
