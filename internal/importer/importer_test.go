package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/newtondotcom/roomplanv2/internal/fsutil"
	"github.com/newtondotcom/roomplanv2/internal/plan"
)

// denyScope fails Acquire for the configured paths.
type denyScope struct {
	denied map[string]bool
}

func (d *denyScope) Acquire(path string) (func(), error) {
	if d.denied[path] {
		return nil, errors.New("access denied")
	}
	return func() {}, nil
}

func newTestImporter(t *testing.T) (*Coordinator, *plan.Store, *fsutil.MemoryFileSystem) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	store, err := plan.NewStore(fs, "/data")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewCoordinator(store, fs, OSScopedAccess{}), store, fs
}

func TestImportCopiesAndNamesRooms(t *testing.T) {
	c, store, fs := newTestImporter(t)
	p, _ := store.Create("Flat")

	fs.WriteFile("/external/Kitchen.json", []byte(`{"walls":4}`), 0o644)
	fs.WriteFile("/external/Hall.json", []byte(`{"walls":6}`), 0o644)

	added, err := c.Import(context.Background(), p.ID, []string{
		"/external/Kitchen.json",
		"/external/Hall.json",
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("added = %d, want 2", len(added))
	}

	// room names come from the filename without extension
	if added[0].Name != "Kitchen" || added[1].Name != "Hall" {
		t.Errorf("room names = %q, %q", added[0].Name, added[1].Name)
	}

	// geometry is copied into the project's own directory
	for _, r := range added {
		if r.GeometryPath == nil {
			t.Fatalf("room %q has no geometry path", r.Name)
		}
		want := "/data/" + p.ID.String() + "/" + r.Name + ".json"
		if *r.GeometryPath != want {
			t.Errorf("geometry path = %q, want %q", *r.GeometryPath, want)
		}
		if !fs.Exists(*r.GeometryPath) {
			t.Errorf("copied geometry %s missing", *r.GeometryPath)
		}
	}

	got, _ := store.Get(p.ID)
	if len(got.Rooms) != 2 {
		t.Errorf("persisted rooms = %d, want 2", len(got.Rooms))
	}
}

func TestImportCollidingBasenames(t *testing.T) {
	c, store, fs := newTestImporter(t)
	p, _ := store.Create("Flat")

	fs.WriteFile("/a/room.json", []byte(`{"n":1}`), 0o644)
	fs.WriteFile("/b/room.json", []byte(`{"n":2}`), 0o644)

	added, err := c.Import(context.Background(), p.ID, []string{
		"/a/room.json",
		"/b/room.json",
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("added = %d, want 2", len(added))
	}

	// each room keeps its own copy: same basename must not share a file
	if *added[0].GeometryPath == *added[1].GeometryPath {
		t.Fatalf("both rooms point at %s", *added[0].GeometryPath)
	}
	first, err := fs.ReadFile(*added[0].GeometryPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	second, err := fs.ReadFile(*added[1].GeometryPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(first) != `{"n":1}` || string(second) != `{"n":2}` {
		t.Errorf("geometry overwritten: %q, %q", first, second)
	}
}

func TestImportPartialFailure(t *testing.T) {
	c, store, fs := newTestImporter(t)
	p, _ := store.Create("Flat")

	fs.WriteFile("/external/ok.json", []byte(`{"walls":4}`), 0o644)
	fs.WriteFile("/external/broken.json", []byte(`{not json`), 0o644)
	// missing.json is never written

	added, err := c.Import(context.Background(), p.ID, []string{
		"/external/ok.json",
		"/external/broken.json",
		"/external/missing.json",
	})

	var batch *plan.BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("err = %v, want BatchError", err)
	}
	if len(added) != 1 || batch.Succeeded != 1 {
		t.Fatalf("added = %d, succeeded = %d, want 1", len(added), batch.Succeeded)
	}
	if len(batch.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(batch.Failures))
	}

	var sawInvalid bool
	for _, f := range batch.Failures {
		if errors.Is(f.Err, plan.ErrInvalidGeometry) {
			sawInvalid = true
		}
	}
	if !sawInvalid {
		t.Error("invalid geometry failure not reported as ErrInvalidGeometry")
	}

	// the valid file still landed
	got, _ := store.Get(p.ID)
	if len(got.Rooms) != 1 || got.Rooms[0].Name != "ok" {
		t.Errorf("persisted rooms = %+v", got.Rooms)
	}
}

func TestImportScopedAccessDenied(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store, _ := plan.NewStore(fs, "/data")
	scope := &denyScope{denied: map[string]bool{"/external/locked.json": true}}
	c := NewCoordinator(store, fs, scope)
	p, _ := store.Create("Flat")

	fs.WriteFile("/external/open.json", []byte(`{}`), 0o644)
	fs.WriteFile("/external/locked.json", []byte(`{}`), 0o644)

	added, err := c.Import(context.Background(), p.ID, []string{
		"/external/open.json",
		"/external/locked.json",
	})

	var batch *plan.BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("err = %v, want BatchError", err)
	}
	if len(added) != 1 || added[0].Name != "open" {
		t.Errorf("added = %+v", added)
	}
}

func TestImportRejectsReadOnlyProject(t *testing.T) {
	c, store, fs := newTestImporter(t)
	p, _ := store.CreateWithRooms("Browsed", nil, false)
	fs.WriteFile("/external/a.json", []byte(`{}`), 0o644)

	_, err := c.Import(context.Background(), p.ID, []string{"/external/a.json"})
	if !errors.Is(err, plan.ErrReadOnlyProject) {
		t.Fatalf("err = %v, want ErrReadOnlyProject", err)
	}
}

func TestImportUnknownProject(t *testing.T) {
	c, _, _ := newTestImporter(t)

	_, err := c.Import(context.Background(), uuid.New(), []string{"/external/a.json"})
	if !errors.Is(err, plan.ErrProjectNotFound) {
		t.Fatalf("err = %v, want ErrProjectNotFound", err)
	}
}

func TestImportNoFiles(t *testing.T) {
	c, store, _ := newTestImporter(t)
	p, _ := store.Create("Flat")

	if _, err := c.Import(context.Background(), p.ID, nil); err == nil {
		t.Fatal("expected error for empty file list")
	}
}
