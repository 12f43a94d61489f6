package gcs

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// WriteObject stores data under bucket/object with the given content type.
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error

	// ReadObject returns the bytes stored at the given gs:// URI.
	ReadObject(ctx context.Context, uri string) ([]byte, error)
}
