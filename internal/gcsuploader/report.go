package gcsuploader

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/dvloznov/promotion-consumer/internal/logger"
)

const reportContentType = "application/json"

// ReportObjectName returns "<prefix>/<runID>.json".
func ReportObjectName(prefix, runID string) string {
	return path.Join(prefix, runID+".json")
}

// ReportUploader archives run summaries as JSON objects.
type ReportUploader struct {
	storage StorageService
	bucket  string
	prefix  string
}

// NewReportUploader creates a ReportUploader writing under bucket/prefix.
func NewReportUploader(storage StorageService, bucket, prefix string) *ReportUploader {
	return &ReportUploader{storage: storage, bucket: bucket, prefix: prefix}
}

// Upload writes report as gs://bucket/prefix/runID.json and returns its URI.
func (u *ReportUploader) Upload(ctx context.Context, runID string, report any) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("Upload: run ID is required")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Upload: marshaling report: %w", err)
	}

	object := ReportObjectName(u.prefix, runID)
	if err := u.storage.WriteObject(ctx, u.bucket, object, reportContentType, data); err != nil {
		return "", fmt.Errorf("Upload: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", u.bucket, object)
	log := logger.FromContext(ctx)
	log.Info().Str("uri", uri).Int("bytes", len(data)).Msg("Run report uploaded")
	return uri, nil
}

// Download reads the report at uri into out.
func Download(ctx context.Context, storage StorageService, uri string, out any) error {
	data, err := storage.ReadObject(ctx, uri)
	if err != nil {
		return fmt.Errorf("Download: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("Download: decoding %s: %w", uri, err)
	}
	return nil
}
