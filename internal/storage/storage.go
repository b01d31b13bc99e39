// Package storage abstracts object persistence behind a single Gateway so the
// rest of the system never branches on whether bytes live on local disk or in
// an object store.
package storage

import (
	"context"
	"time"
)

// SignedUpload is one issued upload grant: the URL the client PUTs bytes to
// and the stable file URL under which the object will be addressable.
type SignedUpload struct {
	UploadURL string
	FileURL   string
}

// Gateway is the storage contract. URLs returned by Put and SignUpload are
// backend-prefixed (local:// or s3://) and are only ever interpreted by the
// gateway itself.
type Gateway interface {
	// Put stores data under key and returns the file URL.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get loads the bytes behind a file URL previously returned by Put or
	// SignUpload.
	Get(ctx context.Context, fileURL string) ([]byte, error)

	// SignUpload issues a time-limited upload URL for a client-direct upload.
	SignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (SignedUpload, error)

	// SignDownload converts a file URL into a time-limited URL the browser
	// can fetch.
	SignDownload(ctx context.Context, fileURL string, expiry time.Duration) (string, error)

	// Delete removes the object behind a file URL. Missing objects are not
	// an error.
	Delete(ctx context.Context, fileURL string) error
}
