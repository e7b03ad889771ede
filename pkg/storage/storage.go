// Package storage defines the object store the bot uploads received media to.
//
// The transcription provider fetches media by URL, so [Storage.Upload]
// returns an address the provider can reach. Implementations live in
// sub-packages (storage/s3 for S3 and MinIO).
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Storage is an object store for media files. Implementations must be safe
// for concurrent use.
type Storage interface {
	// Upload copies the file at localPath into the store under
	// destinationName and returns a URL from which it can be fetched.
	Upload(ctx context.Context, localPath, destinationName string) (string, error)

	// Download copies objectName from the store to destinationPath.
	Download(ctx context.Context, objectName, destinationPath string) error
}

// ObjectName builds the destination name for an uploaded file: the base name
// of localPath with the timestamp t (ISO 8601, ':' replaced by '-') inserted
// before the extension. For example "talk.mp3" at 2024-01-02T03:04:05Z
// becomes "talk_2024-01-02T03-04-05Z.mp3".
func ObjectName(localPath string, t time.Time) string {
	base := filepath.Base(localPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := strings.ReplaceAll(t.Format(time.RFC3339), ":", "-")
	return fmt.Sprintf("%s_%s%s", stem, stamp, ext)
}
