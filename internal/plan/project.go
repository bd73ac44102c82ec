// Package plan holds the project and room data model and the authoritative
// project store backing it.
package plan

import (
	"time"

	"github.com/google/uuid"
)

// Room is one scanned or imported space inside a project. GeometryPath points
// at the raw capture file and ExportPath at the exported 3D artifact; both are
// optional. A merged room has been folded into a combined export and is
// excluded from future merge candidate sets, but stays visible, renamable and
// deletable.
type Room struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	GeometryPath *string   `json:"geometry_path,omitempty"`
	ExportPath   *string   `json:"export_path,omitempty"`
	Merged       bool      `json:"merged,omitempty"`
}

// NewRoom creates a room with a fresh id and the given display name.
func NewRoom(name string) Room {
	return Room{
		ID:   uuid.New(),
		Name: name,
	}
}

// Project is a named, ordered collection of rooms. ScannedInApp projects
// accept scan/merge/import mutations; others are browsed read-only.
type Project struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Rooms        []Room    `json:"rooms"`
	CreatedAt    time.Time `json:"created_at"`
	ScannedInApp bool      `json:"scanned_in_app"`
}

// NewProject creates a project with a fresh id. CreatedAt is truncated to
// whole seconds so the value survives an RFC3339 encode/decode cycle exactly.
func NewProject(name string, rooms []Room, scannedInApp bool) Project {
	if rooms == nil {
		rooms = []Room{}
	}
	return Project{
		ID:           uuid.New(),
		Name:         name,
		Rooms:        rooms,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		ScannedInApp: scannedInApp,
	}
}

// Room returns the room with the given id, if present.
func (p *Project) Room(id uuid.UUID) (Room, bool) {
	for _, r := range p.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// MergeCandidates returns the rooms eligible as merge input: not yet merged
// and backed by a durable geometry file.
func (p *Project) MergeCandidates() []Room {
	var out []Room
	for _, r := range p.Rooms {
		if !r.Merged && r.GeometryPath != nil {
			out = append(out, r)
		}
	}
	return out
}

// clone returns a deep copy so callers can't mutate store state through
// shared room slices.
func (p Project) clone() Project {
	out := p
	out.Rooms = make([]Room, len(p.Rooms))
	copy(out.Rooms, p.Rooms)
	return out
}
