// Package importer ingests externally authored room geometry files into a
// project.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newtondotcom/roomplanv2/internal/fsutil"
	"github.com/newtondotcom/roomplanv2/internal/monitoring"
	"github.com/newtondotcom/roomplanv2/internal/plan"
	"github.com/newtondotcom/roomplanv2/internal/security"
)

// ScopedAccess acquires read access to files that may live in sandboxed or
// security-scoped external locations. The returned release must be called
// once the file has been read, regardless of success or failure.
type ScopedAccess interface {
	Acquire(path string) (release func(), err error)
}

// OSScopedAccess is the ScopedAccess for plain POSIX paths, where no scoping
// handshake is needed.
type OSScopedAccess struct{}

// Acquire returns a no-op release.
func (OSScopedAccess) Acquire(path string) (func(), error) {
	return func() {}, nil
}

// Coordinator validates and copies external room files into a project's
// storage area and records the resulting rooms through the store.
type Coordinator struct {
	store *plan.Store
	fs    fsutil.FileSystem
	scope ScopedAccess
	logf  func(format string, v ...interface{})
}

// NewCoordinator creates an import coordinator writing through the given
// store.
func NewCoordinator(store *plan.Store, fsys fsutil.FileSystem, scope ScopedAccess) *Coordinator {
	return &Coordinator{
		store: store,
		fs:    fsys,
		scope: scope,
		logf:  monitoring.Prefixed("import"),
	}
}

// Import ingests the given files into the project. Files that cannot be
// accessed, read, or decoded are skipped and aggregated into a BatchError;
// every valid file still becomes a room. Returns the rooms added.
func (c *Coordinator) Import(ctx context.Context, projectID uuid.UUID, paths []string) ([]plan.Room, error) {
	project, ok := c.store.Get(projectID)
	if !ok {
		return nil, plan.ErrProjectNotFound
	}
	if !project.ScannedInApp {
		return nil, plan.ErrReadOnlyProject
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to import")
	}

	dir := c.store.ProjectDir(projectID)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}

	var added []plan.Room
	var failures []plan.ItemFailure
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		room, err := c.importOne(path, dir)
		if err != nil {
			c.logf("failed to import %s: %v", path, err)
			failures = append(failures, plan.ItemFailure{Name: filepath.Base(path), Err: err})
			continue
		}
		added = append(added, room)
	}

	var updateErr error
	if len(added) > 0 {
		project.Rooms = append(project.Rooms, added...)
		updateErr = c.store.Update(project)
	}

	if len(failures) > 0 {
		if updateErr != nil {
			c.logf("store update after partial import also failed: %v", updateErr)
		}
		return added, &plan.BatchError{Succeeded: len(added), Failures: failures}
	}
	return added, updateErr
}

// importOne validates one external file and copies it into the project
// directory unless it already lives there.
func (c *Coordinator) importOne(path, dir string) (plan.Room, error) {
	release, err := c.scope.Acquire(path)
	if err != nil {
		return plan.Room{}, fmt.Errorf("access %s: %w", path, err)
	}
	defer release()

	data, err := c.fs.ReadFile(path)
	if err != nil {
		return plan.Room{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return plan.Room{}, plan.ErrInvalidGeometry
	}

	dest := filepath.Join(dir, filepath.Base(path))
	if dest != filepath.Clean(path) {
		dest = uniqueDest(c.fs, dir, filepath.Base(path))
		if err := security.ValidatePathWithinDirectory(dest, dir); err != nil {
			return plan.Room{}, err
		}
		if err := fsutil.WriteFileAtomic(c.fs, dest, data, 0o644); err != nil {
			return plan.Room{}, fmt.Errorf("copy into project dir: %w", err)
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	room := plan.NewRoom(name)
	room.GeometryPath = &dest
	return room, nil
}

// uniqueDest picks a destination path inside dir that does not clobber an
// existing file, so two imports sharing a basename keep separate geometry.
// Collisions get a timestamp suffix, then a counter within the same second.
func uniqueDest(fsys fsutil.FileSystem, dir, base string) string {
	dest := filepath.Join(dir, base)
	if !fsys.Exists(dest) {
		return dest
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := time.Now().Format("2006-01-02_15-04-05")
	dest = filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, stamp, ext))
	for i := 1; fsys.Exists(dest); i++ {
		dest = filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", stem, stamp, i, ext))
	}
	return dest
}
