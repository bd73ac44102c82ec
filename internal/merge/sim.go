package merge

import (
	"context"
	"encoding/json"
	"fmt"
)

// SimMerger is the StructureMerger used in dev mode and tests: it combines
// room geometries into one wrapper document.
type SimMerger struct {
	// MergeErr, when set, is returned by every MergeRooms call.
	MergeErr error
}

// MergeRooms wraps the input geometries into a single structure document.
func (m *SimMerger) MergeRooms(ctx context.Context, rooms []json.RawMessage) (json.RawMessage, error) {
	if m.MergeErr != nil {
		return nil, m.MergeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	combined, err := json.Marshal(struct {
		Rooms []json.RawMessage `json:"rooms"`
	}{Rooms: rooms})
	if err != nil {
		return nil, fmt.Errorf("combine rooms: %w", err)
	}
	return combined, nil
}

// SimExporter is the Exporter used in dev mode and tests: it produces a
// stand-in artifact blob from the geometry.
type SimExporter struct {
	// ExportErr, when set, is returned by every Export call.
	ExportErr error
}

// Export returns a placeholder artifact containing the geometry.
func (e *SimExporter) Export(ctx context.Context, geometry json.RawMessage) ([]byte, error) {
	if e.ExportErr != nil {
		return nil, e.ExportErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte("SIMUSDZ\n"), geometry...), nil
}
