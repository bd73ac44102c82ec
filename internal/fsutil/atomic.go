package fsutil

import (
	"fmt"
	"os"
)

// WriteFileAtomic writes data to path through a temporary sibling file and a
// rename, so a reader never observes a partially written file. If any step
// fails the previous contents of path are left untouched.
func WriteFileAtomic(fsys FileSystem, path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		// best effort: don't leave the temp file behind
		fsys.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst atomically. Source and destination may live on
// different FileSystem implementations.
func CopyFile(srcFS FileSystem, src string, dstFS FileSystem, dst string, perm os.FileMode) error {
	data, err := srcFS.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	return WriteFileAtomic(dstFS, dst, data, perm)
}
