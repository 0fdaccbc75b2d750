package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBlobStoreStoreOpenDelete(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	meta, err := store.Store(context.Background(), "homework.pdf", "application/pdf", bytes.NewBufferString("solution"))
	require.NoError(t, err)
	require.Equal(t, "homework.pdf", meta.Filename)
	require.Equal(t, int64(len("solution")), meta.Size)
	require.True(t, strings.HasSuffix(meta.Handle, ".pdf"))
	require.NotContains(t, meta.Handle, "homework")

	file, err := store.Open(meta.Handle)
	require.NoError(t, err)
	content, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	require.Equal(t, "solution", string(content))

	require.NoError(t, store.Delete(meta.Handle))
	_, err = store.Open(meta.Handle)
	require.Error(t, err)

	// deleting an already released handle is a no-op
	require.NoError(t, store.Delete(meta.Handle))
}

func TestBlobStoreHandlesAreUnique(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Store(context.Background(), "essay.txt", "text/plain", bytes.NewBufferString("a"))
	require.NoError(t, err)
	second, err := store.Store(context.Background(), "essay.txt", "text/plain", bytes.NewBufferString("b"))
	require.NoError(t, err)
	require.NotEqual(t, first.Handle, second.Handle)
}

func TestBlobStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open("../etc/passwd")
	require.Error(t, err)
	require.Error(t, store.Delete("sub/dir"))
	_, err = store.Open(".hidden")
	require.Error(t, err)
}

func TestBlobStoreCancelledUploadLeavesNoHandle(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBlobStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Store(ctx, "big.doc", "application/msword", bytes.NewBufferString("partial"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSignedLinkSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedLinkSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("sub-1", "abc.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	submissionID, handle, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "sub-1", submissionID)
	require.Equal(t, "abc.pdf", handle)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedLinkSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSignedLinkSigner("secret", time.Hour)
	token, _, err := signer.Generate("sub-1", "abc.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "sub-2"
	_, _, _, err = signer.Parse(strings.Join(parts, "."))
	require.Error(t, err)
}

func TestSignedLinkSignerExpired(t *testing.T) {
	signer := NewSignedLinkSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("sub-1", "abc.pdf")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}
