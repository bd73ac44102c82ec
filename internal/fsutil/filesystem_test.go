package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystemExists(t *testing.T) {
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "probe.txt")

	if fsys.Exists(path) {
		t.Error("Exists returned true for missing file")
	}
	if err := fsys.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fsys.Exists(path) {
		t.Error("Exists returned false for written file")
	}
}

func TestOSFileSystemRoundTrip(t *testing.T) {
	fsys := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	path := filepath.Join(dir, "data.json")
	if err := fsys.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("content = %q", data)
	}

	moved := filepath.Join(dir, "moved.json")
	if err := fsys.Rename(path, moved); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if fsys.Exists(path) || !fsys.Exists(moved) {
		t.Error("Rename left the wrong files behind")
	}

	if err := fsys.Remove(moved); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
}

func TestMemoryFileSystemReadWrite(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/test.txt", []byte("hello, world"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello, world" {
		t.Errorf("content = %q", data)
	}

	// the returned slice is a copy
	data[0] = 'X'
	again, _ := mfs.ReadFile("/test.txt")
	if string(again) != "hello, world" {
		t.Error("mutating returned data changed stored content")
	}
}

func TestMemoryFileSystemReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_, err := mfs.ReadFile("/absent.txt")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestMemoryFileSystemRename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/old.txt", []byte("payload"), 0o644)
	mfs.WriteFile("/new.txt", []byte("stale"), 0o644)

	if err := mfs.Rename("/old.txt", "/new.txt"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if mfs.Exists("/old.txt") {
		t.Error("old path still exists after rename")
	}
	data, _ := mfs.ReadFile("/new.txt")
	if string(data) != "payload" {
		t.Errorf("rename did not replace destination: %q", data)
	}

	if err := mfs.Rename("/absent.txt", "/x"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("rename of missing file = %v, want fs.ErrNotExist", err)
	}
}

func TestMemoryFileSystemMkdirAll(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/a/b/c", os.FileMode(0o755)); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		if !mfs.Exists(dir) {
			t.Errorf("directory %s missing", dir)
		}
	}
}

func TestMemoryFileSystemRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.WriteFile("/removeme.txt", []byte("x"), 0o644)

	if err := mfs.Remove("/removeme.txt"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mfs.Exists("/removeme.txt") {
		t.Error("file still exists after Remove")
	}
	if err := mfs.Remove("/removeme.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second Remove = %v, want fs.ErrNotExist", err)
	}
}

func TestMemoryFileSystemRemoveAll(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.MkdirAll("/proj/sub", 0o755)
	mfs.WriteFile("/proj/a.json", []byte("{}"), 0o644)
	mfs.WriteFile("/proj/sub/b.json", []byte("{}"), 0o644)
	mfs.WriteFile("/projects.json", []byte("[]"), 0o644)

	if err := mfs.RemoveAll("/proj"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if mfs.Exists("/proj/a.json") || mfs.Exists("/proj/sub/b.json") || mfs.Exists("/proj") {
		t.Error("RemoveAll left children behind")
	}
	// sibling with a shared name prefix survives
	if !mfs.Exists("/projects.json") {
		t.Error("RemoveAll removed an unrelated sibling")
	}
}

func TestMemoryFileSystemFaultInjection(t *testing.T) {
	mfs := NewMemoryFileSystem()

	mfs.WriteErr = errors.New("boom")
	if err := mfs.WriteFile("/x", nil, 0o644); err == nil {
		t.Error("WriteErr not surfaced")
	}
	mfs.WriteErr = nil
	mfs.WriteFile("/x", []byte("x"), 0o644)

	mfs.RenameErr = errors.New("boom")
	if err := mfs.Rename("/x", "/y"); err == nil {
		t.Error("RenameErr not surfaced")
	}
	if !mfs.Exists("/x") {
		t.Error("failed rename must not move the file")
	}
}
