package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/storage"
)

// Upload is an incoming file stream from a multipart request.
type Upload struct {
	Filename string
	MIMEType string
	Size     int64
	Reader   io.Reader
}

type blobStorage interface {
	Store(ctx context.Context, originalName, mimeType string, r io.Reader) (storage.FileMeta, error)
	Open(handle string) (io.ReadCloser, error)
	Delete(handle string) error
}

// UploadLimits bound what a single request may carry.
type UploadLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

func validateUploads(uploads []Upload, allowedFormats []string, limits UploadLimits) error {
	if limits.MaxFiles > 0 && len(uploads) > limits.MaxFiles {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files per request", limits.MaxFiles))
	}
	maxSize := limits.MaxFileSize
	if maxSize <= 0 {
		maxSize = models.DefaultMaxFileSize
	}

	for _, u := range uploads {
		if u.Size > maxSize {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s exceeds the %d byte limit", u.Filename, maxSize))
		}
		if len(allowedFormats) == 0 {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(u.Filename)), ".")
		ok := false
		for _, f := range allowedFormats {
			if ext == strings.ToLower(f) {
				ok = true
				break
			}
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: format %q is not accepted (allowed: %s)", u.Filename, ext, strings.Join(allowedFormats, ", ")))
		}
	}
	return nil
}

// storeUploads writes every upload to the blob store. On any failure the blobs
// already written are released before returning.
func storeUploads(ctx context.Context, store blobStorage, uploads []Upload) ([]storage.FileMeta, error) {
	stored := make([]storage.FileMeta, 0, len(uploads))
	for _, u := range uploads {
		meta, err := store.Store(ctx, u.Filename, u.MIMEType, u.Reader)
		if err != nil {
			releaseBlobs(store, stored, nil)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
		}
		stored = append(stored, meta)
	}
	return stored, nil
}

// releaseBlobs best-effort deletes stored blobs, returning warnings for the
// handles that could not be removed. The database stays authoritative; an
// orphaned blob is only wasted disk.
func releaseBlobs(store blobStorage, metas []storage.FileMeta, logger *zap.Logger) []string {
	var warnings []string
	for _, m := range metas {
		if err := store.Delete(m.Handle); err != nil {
			warnings = append(warnings, fmt.Sprintf("file %s could not be removed from storage", m.Filename))
			if logger != nil {
				logger.Warn("failed to release blob", zap.String("handle", m.Handle), zap.Error(err))
			}
		}
	}
	return warnings
}
