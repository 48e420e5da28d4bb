package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	tabletserrors "github.com/arkilian/tablets/internal/errors"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	content := "snapshot bytes"
	srcPath := writeTempFile(t, content)

	objectPath := "snapshots/people/v000001.json.sz"
	if err := storage.Upload(ctx, srcPath, objectPath); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	dstPath := filepath.Join(t.TempDir(), "nested", "downloaded.bin")
	if err := storage.Download(ctx, objectPath, dstPath); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	downloaded, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(downloaded) != content {
		t.Errorf("content mismatch: got %q, want %q", downloaded, content)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}

	// Deleting again is a no-op.
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalStorage_DownloadNotFound(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	err = storage.Download(context.Background(), "nonexistent/object", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if tabletserrors.IsRetryable(err) {
		t.Error("a missing object is not retryable")
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	srcPath := writeTempFile(t, "x")

	for _, obj := range []string{"snapshots/b/v2", "snapshots/a/v1", "snapshots/a/v2", "other/c"} {
		if err := storage.Upload(ctx, srcPath, obj); err != nil {
			t.Fatalf("Upload %s failed: %v", obj, err)
		}
	}

	got, err := storage.ListObjects(ctx, "snapshots/a/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if want := []string{"snapshots/a/v1", "snapshots/a/v2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got, err = storage.ListObjects(ctx, "missing/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no objects, got %v", got)
	}
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	srcPath := writeTempFile(t, "x")

	for _, obj := range []string{"../outside", "", "a/../../outside"} {
		err := storage.Upload(context.Background(), srcPath, obj)
		if !errors.Is(err, ErrUploadFailed) {
			t.Errorf("%q: expected ErrUploadFailed, got %v", obj, err)
		}
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Upload(ctx, writeTempFile(t, "x"), "obj"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := storage.ListObjects(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUploadFailedIsRetryable(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	err = storage.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), "obj")
	if !tabletserrors.IsRetryable(err) {
		t.Errorf("upload failures should be retryable, got %v", err)
	}
}
