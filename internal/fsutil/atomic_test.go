package fsutil

import (
	"errors"
	"os"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	fs := NewMemoryFileSystem()

	if err := WriteFileAtomic(fs, "/data/projects.json", []byte(`[]`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := fs.ReadFile("/data/projects.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `[]` {
		t.Errorf("unexpected content: %q", data)
	}
	if fs.Exists("/data/projects.json.tmp") {
		t.Error("temp file left behind after successful write")
	}
}

func TestWriteFileAtomicWriteFailure(t *testing.T) {
	fs := NewMemoryFileSystem()
	fs.WriteErr = errors.New("disk full")

	err := WriteFileAtomic(fs, "/data/projects.json", []byte(`[]`), 0o644)
	if err == nil {
		t.Fatal("expected error when write fails")
	}
	if fs.Exists("/data/projects.json") {
		t.Error("destination file created despite write failure")
	}
}

func TestWriteFileAtomicRenameFailure(t *testing.T) {
	fs := NewMemoryFileSystem()
	if err := fs.WriteFile("/data/projects.json", []byte(`["old"]`), 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}
	fs.RenameErr = errors.New("interrupted")

	err := WriteFileAtomic(fs, "/data/projects.json", []byte(`["new"]`), 0o644)
	if err == nil {
		t.Fatal("expected error when rename fails")
	}

	// the previous content must survive a failed replacement
	data, readErr := fs.ReadFile("/data/projects.json")
	if readErr != nil {
		t.Fatalf("ReadFile failed: %v", readErr)
	}
	if string(data) != `["old"]` {
		t.Errorf("original content lost: %q", data)
	}
}

func TestCopyFile(t *testing.T) {
	src := NewMemoryFileSystem()
	dst := NewMemoryFileSystem()
	if err := src.WriteFile("/ext/room.json", []byte(`{"walls":4}`), 0o644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	if err := CopyFile(src, "/ext/room.json", dst, "/data/room.json", os.FileMode(0o644)); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	data, err := dst.ReadFile("/data/room.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"walls":4}` {
		t.Errorf("unexpected copied content: %q", data)
	}
}
