// Package capture abstracts the external room capture engine and owns the
// multi-room capture session lifecycle.
package capture

import (
	"context"
	"encoding/json"
	"errors"
)

// RawRoom is the opaque sensor output for one room scan. The core buffers
// and forwards it wholesale, never interpreting its internals.
type RawRoom []byte

// Result is delivered by the engine after a room capture is stopped: either
// the raw room data or the error that ended the capture.
type Result struct {
	Data RawRoom
	Err  error
}

// Engine drives the underlying sensing subsystem. Implementations deliver
// results asynchronously from their own goroutine; the session controller is
// the sole consumer of the Results channel.
type Engine interface {
	// Start begins capturing a room. Starting again after a non-teardown
	// Stop reuses the warm sensing context, keeping the session continuous.
	Start() error

	// Stop ends the current room capture. With teardown=false the sensing
	// context stays warm for the next room and a Result follows on the
	// Results channel; with teardown=true the context is torn down and no
	// result is delivered.
	Stop(teardown bool) error

	// Results carries one Result per non-teardown Stop.
	Results() <-chan Result

	// Close releases the engine entirely.
	Close() error
}

// ErrEngineUnavailable reports that no capture hardware is present.
var ErrEngineUnavailable = errors.New("capture engine unavailable on this host")

// UnavailableEngine is the Engine wired on hosts without capture hardware.
// Every operation fails with ErrEngineUnavailable so callers get a clear
// diagnostic instead of a hang.
type UnavailableEngine struct{}

func (UnavailableEngine) Start() error             { return ErrEngineUnavailable }
func (UnavailableEngine) Stop(teardown bool) error { return ErrEngineUnavailable }
func (UnavailableEngine) Results() <-chan Result   { return nil }
func (UnavailableEngine) Close() error             { return nil }

// RoomBuilder reconstructs a room geometry from raw capture output. The
// geometry is opaque JSON to the core.
type RoomBuilder interface {
	BuildRoom(ctx context.Context, data RawRoom) (json.RawMessage, error)
}
