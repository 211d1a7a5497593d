package backup

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Upload writes an encoded bundle to a GCS bucket under the given object
// name. It assumes Application Default Credentials are configured.
func Upload(ctx context.Context, bucketName, objectName string, b Bundle) (string, error) {
	data, err := b.Encode()
	if err != nil {
		return "", fmt.Errorf("backup.Upload: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("backup.Upload: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("backup.Upload: writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("backup.Upload: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}

// Fetch downloads and decodes a bundle from the given GCS URI
// (gs://bucket/path/to/backup.json).
func Fetch(ctx context.Context, gcsURI string) (Bundle, error) {
	bucketName, objectPath, err := splitGCSURI(gcsURI)
	if err != nil {
		return Bundle{}, fmt.Errorf("backup.Fetch: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("backup.Fetch: create storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return Bundle{}, fmt.Errorf("backup.Fetch: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Bundle{}, fmt.Errorf("backup.Fetch: reading bytes: %w", err)
	}
	return Decode(data)
}

// ObjectName builds a timestamped object name for an exported bundle,
// e.g. backups/2026/08/31/snap-ledger-20260831T120000Z.json.
func ObjectName(now time.Time) string {
	now = now.UTC()
	return path.Join(
		"backups",
		now.Format("2006/01/02"),
		"snap-ledger-"+now.Format("20060102T150405Z")+".json",
	)
}

func splitGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
