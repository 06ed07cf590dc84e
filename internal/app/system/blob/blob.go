// internal/app/system/blob/blob.go
//
// Package blob stores file contents outside the metadata database. The
// service only ever sees opaque blob references; uploads and downloads go
// straight to the backend through short-lived URLs.
package blob

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the contract every backend satisfies.
//
// Delete is idempotent: removing a blob that does not exist succeeds.
// DownloadURL reports false when the blob is absent.
type Store interface {
	UploadURL(ctx context.Context) (UploadTicket, error)
	DownloadURL(ctx context.Context, ref string) (string, bool, error)
	Delete(ctx context.Context, ref string) error
}

// Checker is implemented by backends that can report whether they are
// reachable without touching any blob.
type Checker interface {
	Check(ctx context.Context) error
}

// UploadTicket is handed to a client that wants to upload file contents.
// After uploading to URL the client registers the file with BlobRef.
type UploadTicket struct {
	URL       string    `json:"url"`
	BlobRef   string    `json:"blob_ref"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrBadSignature = errors.New("blob: bad signature")
	ErrExpired      = errors.New("blob: url expired")
	ErrInvalidRef   = errors.New("blob: invalid reference")
)

// DefaultExpiry is used when a backend is built with a zero expiry.
const DefaultExpiry = 15 * time.Minute

func newRef() string {
	return uuid.NewString()
}
