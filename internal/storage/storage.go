// Package storage provides the object stores that hold exported table
// descriptor snapshots.
package storage

import (
	"context"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
)

// Common errors for storage operations. They match with errors.Is through
// any wrapping, and upload/download failures are retryable.
var (
	ErrObjectNotFound = tabletserrors.New(tabletserrors.ErrCategoryStorage, tabletserrors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = tabletserrors.New(tabletserrors.ErrCategoryStorage, tabletserrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = tabletserrors.New(tabletserrors.ErrCategoryStorage, tabletserrors.CodeDownloadFailed, "download failed")
	ErrDeleteFailed   = tabletserrors.New(tabletserrors.ErrCategoryStorage, tabletserrors.CodeDeleteFailed, "delete failed")
)

// ObjectStorage abstracts object storage operations.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to the local file at localPath.
	// Returns ErrObjectNotFound if the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
