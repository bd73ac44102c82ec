package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/newtondotcom/roomplanv2/internal/fsutil"
	"github.com/newtondotcom/roomplanv2/internal/monitoring"
)

// projectsFile is the single durable file holding every project record.
const projectsFile = "projects.json"

var (
	// ErrEmptyName rejects project or room names that are empty after trimming.
	ErrEmptyName = errors.New("name must not be empty")

	// ErrProjectNotFound reports an unknown project id.
	ErrProjectNotFound = errors.New("project not found")

	// ErrRoomNotFound reports an unknown room id within a project.
	ErrRoomNotFound = errors.New("room not found")
)

// Store is the single authoritative collection of projects, in memory and on
// disk. Every successful mutation re-serializes the whole collection to one
// JSON file, written atomically so a crash mid-write never corrupts the last
// valid state.
//
// A persistence failure is returned to the caller but does not roll back the
// in-memory change: the running session keeps the user's work, the error is
// surfaced once.
type Store struct {
	mu       sync.Mutex
	fs       fsutil.FileSystem
	dataDir  string
	filePath string
	projects []Project
	events   *Notifier
	logf     func(format string, v ...interface{})
}

// NewStore opens the store rooted at dataDir, creating the directory if
// needed and loading any previously persisted projects. A missing or
// undecodable projects file yields an empty collection; corruption is logged
// so it stays distinguishable operationally.
func NewStore(fsys fsutil.FileSystem, dataDir string) (*Store, error) {
	if err := fsys.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		fs:       fsys,
		dataDir:  dataDir,
		filePath: filepath.Join(dataDir, projectsFile),
		events:   NewNotifier(),
		logf:     monitoring.Prefixed("store"),
	}
	s.load()
	return s, nil
}

// Events exposes the store's change notifier.
func (s *Store) Events() *Notifier { return s.events }

// ProjectDir returns the directory holding a project's room geometry and
// export files.
func (s *Store) ProjectDir(id uuid.UUID) string {
	return filepath.Join(s.dataDir, id.String())
}

// Create adds an empty project scanned in-app.
func (s *Store) Create(name string) (Project, error) {
	return s.CreateWithRooms(name, nil, true)
}

// CreateWithRooms adds a project with an initial room set.
func (s *Store) CreateWithRooms(name string, rooms []Room, scannedInApp bool) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := NewProject(name, rooms, scannedInApp)
	s.projects = append(s.projects, p)
	s.logf("created project %q rooms=%d scanned=%v (id=%s)", p.Name, len(p.Rooms), p.ScannedInApp, p.ID)

	err := s.persist()
	s.events.Publish(Event{Kind: EventProjectCreated, ProjectID: p.ID})
	return p.clone(), err
}

// Update replaces the stored project with the same id. Unknown ids are a
// logged no-op, matching the forgiving update semantics of the UI flows that
// call it.
func (s *Store) Update(p Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(p.ID)
	if idx < 0 {
		s.logf("update for unknown project %s ignored", p.ID)
		return nil
	}
	s.projects[idx] = p.clone()

	err := s.persist()
	s.events.Publish(Event{Kind: EventProjectUpdated, ProjectID: p.ID})
	return err
}

// Delete removes the projects with the given ids. Unknown ids are ignored.
// Deletion is irreversible.
func (s *Store) Delete(ids ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := s.projects[:0]
	var removed []uuid.UUID
	for _, p := range s.projects {
		if drop[p.ID] {
			removed = append(removed, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	s.projects = kept

	if len(removed) == 0 {
		return nil
	}

	err := s.persist()
	for _, id := range removed {
		s.events.Publish(Event{Kind: EventProjectDeleted, ProjectID: id})
	}
	return err
}

// Get returns the project with the given id.
func (s *Store) Get(id uuid.UUID) (Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return Project{}, false
	}
	return s.projects[idx].clone(), true
}

// List returns all projects in insertion order.
func (s *Store) List() []Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.clone())
	}
	return out
}

// RenameProject sets a project's display name. Empty names after trimming
// are rejected and the stored name is unchanged.
func (s *Store) RenameProject(id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return ErrProjectNotFound
	}
	s.projects[idx].Name = name

	err := s.persist()
	s.events.Publish(Event{Kind: EventProjectUpdated, ProjectID: id})
	return err
}

// RenameRoom sets a room's display name within a project. Empty names after
// trimming are rejected and the stored name is unchanged.
func (s *Store) RenameRoom(projectID, roomID uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(projectID)
	if idx < 0 {
		return ErrProjectNotFound
	}
	for i := range s.projects[idx].Rooms {
		if s.projects[idx].Rooms[i].ID == roomID {
			s.projects[idx].Rooms[i].Name = name
			err := s.persist()
			s.events.Publish(Event{Kind: EventProjectUpdated, ProjectID: projectID})
			return err
		}
	}
	return ErrRoomNotFound
}

// DeleteRoom removes a room from its project's list.
func (s *Store) DeleteRoom(projectID, roomID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(projectID)
	if idx < 0 {
		return ErrProjectNotFound
	}
	rooms := s.projects[idx].Rooms
	for i := range rooms {
		if rooms[i].ID == roomID {
			s.projects[idx].Rooms = append(rooms[:i:i], rooms[i+1:]...)
			err := s.persist()
			s.events.Publish(Event{Kind: EventProjectUpdated, ProjectID: projectID})
			return err
		}
	}
	return ErrRoomNotFound
}

// Reload discards the in-memory collection and re-reads the projects file.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = nil
	s.load()
}

// index returns the position of the project with the given id, or -1. Caller
// must hold s.mu.
func (s *Store) index(id uuid.UUID) int {
	for i := range s.projects {
		if s.projects[i].ID == id {
			return i
		}
	}
	return -1
}

// load reads the projects file. Missing file and corrupt file both yield an
// empty collection; only corruption is logged. Caller must hold s.mu.
func (s *Store) load() {
	data, err := s.fs.ReadFile(s.filePath)
	if err != nil {
		// no file yet: fresh empty state
		return
	}
	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		s.logf("projects file %s is undecodable, starting empty: %v", s.filePath, err)
		return
	}
	s.projects = projects
	s.logf("loaded %d persisted projects", len(projects))
}

// persist re-serializes the whole collection atomically. Caller must hold
// s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.projects, "", "  ")
	if err != nil {
		return fmt.Errorf("encode projects: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.fs, s.filePath, data, 0o644); err != nil {
		s.logf("failed to persist projects: %v", err)
		return fmt.Errorf("write project file: %w", err)
	}
	return nil
}
