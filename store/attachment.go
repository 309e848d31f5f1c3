package store

import (
	"context"
	"io"
)

// AttachmentFileStore handles attachment blob storage. Payloads only carry
// Attachment descriptors; implementations can back them with S3, GCS, a
// local filesystem, or anything else that round-trips a URI.
type AttachmentFileStore interface {
	// Upload stores content and returns a URI for later retrieval.
	Upload(ctx context.Context, filename, contentType string, content io.Reader) (uri string, err error)

	// Load returns a reader for the attachment content.
	// Caller is responsible for closing the reader.
	Load(ctx context.Context, uri string) (io.ReadCloser, error)

	// Delete removes the attachment file from storage.
	Delete(ctx context.Context, uri string) error
}
