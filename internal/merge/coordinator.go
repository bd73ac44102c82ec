// Package merge turns a session's accumulated rooms into persisted room
// records and combined 3D export artifacts.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newtondotcom/roomplanv2/internal/fsutil"
	"github.com/newtondotcom/roomplanv2/internal/monitoring"
	"github.com/newtondotcom/roomplanv2/internal/plan"
)

var (
	// ErrInsufficientMergeInput reports that no usable candidate room was
	// available to merge or convert.
	ErrInsufficientMergeInput = errors.New("no unmerged room with readable geometry available")

	// ErrMergeInProgress rejects a second concurrent merge on the same
	// project.
	ErrMergeInProgress = errors.New("a merge is already running for this project")
)

// exportExt is the extension of exported 3D artifacts. The artifact itself
// is an opaque blob produced by the export capability.
const exportExt = ".usdz"

// fileTimestamp is the layout stamped into room and export filenames so
// repeated operations never collide.
const fileTimestamp = "2006-01-02_15-04-05"

// StructureMerger is the external capability combining several room
// geometries into one structure.
type StructureMerger interface {
	MergeRooms(ctx context.Context, rooms []json.RawMessage) (json.RawMessage, error)
}

// Exporter is the external capability converting a geometry into a
// distributable 3D artifact blob.
type Exporter interface {
	Export(ctx context.Context, geometry json.RawMessage) ([]byte, error)
}

// ScannedRoom pairs one built geometry with the name the user gave it.
type ScannedRoom struct {
	Name     string
	Geometry json.RawMessage
}

// Coordinator owns the single/multi-room conversion workflow for all
// projects. At most one merge runs per project at a time.
type Coordinator struct {
	store    *plan.Store
	fs       fsutil.FileSystem
	merger   StructureMerger
	exporter Exporter
	logf     func(format string, v ...interface{})

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

// NewCoordinator creates a merge coordinator writing through the given store.
func NewCoordinator(store *plan.Store, fsys fsutil.FileSystem, merger StructureMerger, exporter Exporter) *Coordinator {
	return &Coordinator{
		store:    store,
		fs:       fsys,
		merger:   merger,
		exporter: exporter,
		logf:     monitoring.Prefixed("merge"),
		inFlight: make(map[uuid.UUID]bool),
	}
}

// StoreScannedRooms names and serializes freshly scanned geometries into the
// project's directory and appends the resulting rooms to the project. A
// per-room write failure does not abort the batch: successes are still
// added and failures are reported together.
func (c *Coordinator) StoreScannedRooms(projectID uuid.UUID, scanned []ScannedRoom) ([]plan.Room, error) {
	project, ok := c.store.Get(projectID)
	if !ok {
		return nil, plan.ErrProjectNotFound
	}
	if !project.ScannedInApp {
		return nil, plan.ErrReadOnlyProject
	}
	if len(scanned) == 0 {
		return nil, fmt.Errorf("no scanned rooms to store")
	}

	dir := c.store.ProjectDir(projectID)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}

	stamp := time.Now().Format(fileTimestamp)
	var added []plan.Room
	var failures []plan.ItemFailure

	for i, sr := range scanned {
		name := strings.TrimSpace(sr.Name)
		if name == "" {
			name = fmt.Sprintf("Room %d", i+1)
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_%s_%d.json", sanitizeFileName(name), stamp, i))
		if err := fsutil.WriteFileAtomic(c.fs, path, sr.Geometry, 0o644); err != nil {
			c.logf("failed to save room %q: %v", name, err)
			failures = append(failures, plan.ItemFailure{Name: name, Err: err})
			continue
		}

		room := plan.NewRoom(name)
		room.GeometryPath = &path
		added = append(added, room)
	}

	var updateErr error
	if len(added) > 0 {
		project.Rooms = append(project.Rooms, added...)
		updateErr = c.store.Update(project)
	}

	if len(failures) > 0 {
		if updateErr != nil {
			c.logf("store update after partial batch also failed: %v", updateErr)
		}
		return added, &plan.BatchError{Succeeded: len(added), Failures: failures}
	}
	return added, updateErr
}

// Merge runs the single/multi-room conversion workflow over every unmerged
// candidate room with durable geometry:
//
// One usable candidate: its geometry is exported and the artifact attached
// to that room. Two or more: the merge capability combines them into one
// structure, one artifact is exported, every input room is marked merged,
// and a new merged room representing the structure is appended.
//
// Candidates whose geometry cannot be read or decoded are skipped; the
// operation fails with ErrInsufficientMergeInput only when none remain.
func (c *Coordinator) Merge(ctx context.Context, projectID uuid.UUID) error {
	c.mu.Lock()
	if c.inFlight[projectID] {
		c.mu.Unlock()
		return ErrMergeInProgress
	}
	c.inFlight[projectID] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, projectID)
		c.mu.Unlock()
	}()

	project, ok := c.store.Get(projectID)
	if !ok {
		return plan.ErrProjectNotFound
	}
	if !project.ScannedInApp {
		return plan.ErrReadOnlyProject
	}

	candidates := project.MergeCandidates()
	if len(candidates) == 0 {
		return ErrInsufficientMergeInput
	}

	// load candidate geometries, excluding any that fail to read or decode
	var rooms []plan.Room
	var geometries []json.RawMessage
	for _, room := range candidates {
		data, err := c.fs.ReadFile(*room.GeometryPath)
		if err != nil {
			c.logf("skipping room %q: %v", room.Name, err)
			continue
		}
		if !json.Valid(data) {
			c.logf("skipping room %q: %v", room.Name, plan.ErrInvalidGeometry)
			continue
		}
		rooms = append(rooms, room)
		geometries = append(geometries, json.RawMessage(data))
	}
	if len(rooms) == 0 {
		return fmt.Errorf("all candidate rooms were unreadable: %w", ErrInsufficientMergeInput)
	}

	dir := c.store.ProjectDir(projectID)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	stamp := time.Now().Format(fileTimestamp)

	if len(rooms) == 1 {
		return c.exportSingle(ctx, project, rooms[0], geometries[0], dir, stamp)
	}
	return c.mergeMany(ctx, project, rooms, geometries, dir, stamp)
}

// exportSingle converts one room's geometry into an export artifact attached
// to that room. The merged flag is untouched.
func (c *Coordinator) exportSingle(ctx context.Context, project plan.Project, room plan.Room, geometry json.RawMessage, dir, stamp string) error {
	blob, err := c.exporter.Export(ctx, geometry)
	if err != nil {
		return fmt.Errorf("export room %q: %w", room.Name, err)
	}

	path := filepath.Join(dir, sanitizeFileName(room.Name)+"_"+stamp+exportExt)
	if err := fsutil.WriteFileAtomic(c.fs, path, blob, 0o644); err != nil {
		return fmt.Errorf("write export artifact: %w", err)
	}

	for i := range project.Rooms {
		if project.Rooms[i].ID == room.ID {
			project.Rooms[i].ExportPath = &path
		}
	}
	c.logf("exported room %q to %s", room.Name, path)
	return c.store.Update(project)
}

// mergeMany combines the candidate geometries into one structure, exports
// it, marks every input merged, and appends the merged room record.
func (c *Coordinator) mergeMany(ctx context.Context, project plan.Project, rooms []plan.Room, geometries []json.RawMessage, dir, stamp string) error {
	combined, err := c.merger.MergeRooms(ctx, geometries)
	if err != nil {
		return fmt.Errorf("merge %d rooms: %w", len(rooms), err)
	}

	blob, err := c.exporter.Export(ctx, combined)
	if err != nil {
		return fmt.Errorf("export merged structure: %w", err)
	}

	// the combined structure has no raw geometry representation of its own;
	// the room id in the artifact name keeps repeated merges from colliding
	merged := plan.NewRoom(fmt.Sprintf("Merged structure (%d rooms)", len(rooms)))
	merged.Merged = true

	path := filepath.Join(dir, "Merged_"+stamp+"_"+merged.ID.String()+exportExt)
	if err := fsutil.WriteFileAtomic(c.fs, path, blob, 0o644); err != nil {
		return fmt.Errorf("write export artifact: %w", err)
	}
	merged.ExportPath = &path

	inputs := make(map[uuid.UUID]bool, len(rooms))
	for _, r := range rooms {
		inputs[r.ID] = true
	}
	for i := range project.Rooms {
		if inputs[project.Rooms[i].ID] {
			project.Rooms[i].Merged = true
		}
	}
	project.Rooms = append(project.Rooms, merged)

	c.logf("merged %d rooms into %s", len(rooms), path)
	return c.store.Update(project)
}

// sanitizeFileName makes a room name safe to embed in a filename.
func sanitizeFileName(name string) string {
	r := strings.NewReplacer(" ", "_", ",", "", ":", "-", "/", "-")
	return r.Replace(name)
}
