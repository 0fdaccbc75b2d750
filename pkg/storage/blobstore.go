package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileMeta describes a stored blob. Handle is the opaque identifier minted by
// the store; it is the only way to address the blob afterwards.
type FileMeta struct {
	Handle   string `db:"handle" json:"handle"`
	Filename string `db:"filename" json:"filename"`
	MIMEType string `db:"mime_type" json:"mime_type"`
	Size     int64  `db:"size" json:"size"`
}

// BlobStore persists uploaded files on disk under opaque handles. Handles are
// never derived from caller input, so a handle cannot be guessed from a
// filename or path.
type BlobStore struct {
	baseDir string
}

// NewBlobStore ensures the base directory exists and returns a store.
func NewBlobStore(baseDir string) (*BlobStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// Store copies the reader into a newly minted handle. The file is written to a
// temporary name and renamed only once fully copied, so a cancelled or failed
// upload never leaves a resolvable handle behind.
func (s *BlobStore) Store(ctx context.Context, originalName, mimeType string, r io.Reader) (FileMeta, error) {
	handle := mintHandle(originalName)
	path := filepath.Join(s.baseDir, handle)
	tmp := path + ".part"

	file, err := os.Create(tmp)
	if err != nil {
		return FileMeta{}, fmt.Errorf("create upload file: %w", err)
	}

	written, err := copyContext(ctx, file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return FileMeta{}, fmt.Errorf("write upload: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return FileMeta{}, fmt.Errorf("finalize upload: %w", err)
	}

	return FileMeta{
		Handle:   handle,
		Filename: filepath.Base(originalName),
		MIMEType: mimeType,
		Size:     written,
	}, nil
}

// Open returns a read-only handle for the stored blob.
func (s *BlobStore) Open(handle string) (io.ReadCloser, error) {
	path, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Delete removes a stored blob if present. A missing blob is not an error.
func (s *BlobStore) Delete(handle string) error {
	path, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *BlobStore) Path(handle string) (string, error) {
	return s.resolve(handle)
}

func (s *BlobStore) resolve(handle string) (string, error) {
	if handle == "" || handle != filepath.Base(handle) || strings.HasPrefix(handle, ".") {
		return "", fmt.Errorf("invalid blob handle")
	}
	return filepath.Join(s.baseDir, handle), nil
}

func mintHandle(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) > 10 {
		ext = ""
	}
	return uuid.NewString() + ext
}

func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if wn != n {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
