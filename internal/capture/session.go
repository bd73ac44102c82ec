package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newtondotcom/roomplanv2/internal/monitoring"
)

// State is the session controller lifecycle state.
type State string

const (
	// StateIdle: no room capture in progress; accumulated rooms may exist.
	StateIdle State = "idle"
	// StateScanning: the engine is actively capturing a room.
	StateScanning State = "scanning"
	// StateAwaitingResult: the current room was stopped; raw data is either
	// buffered (pending) or still expected from the engine.
	StateAwaitingResult State = "awaiting_result"
	// StateProcessing: buffered raw data is being built into a geometry.
	StateProcessing State = "processing"
	// StateEnded: the session was closed and all in-flight state cleared.
	StateEnded State = "ended"
)

var (
	// ErrNoPendingRoomData reports a process request with nothing buffered.
	ErrNoPendingRoomData = errors.New("no pending room data")

	// ErrCaptureTimeout reports that the engine delivered nothing within the
	// wait bound after a stop. The caller may retry the stop or abandon the
	// room; the session itself stays usable.
	ErrCaptureTimeout = errors.New("no capture result received after stopping scan")

	// ErrSessionEnded reports that the session was closed while an operation
	// was still running; the operation's result is discarded.
	ErrSessionEnded = errors.New("session ended")
)

// DefaultResultWait bounds how long StopCurrentRoom waits for the engine to
// deliver the captured room before surfacing ErrCaptureTimeout.
const DefaultResultWait = 3 * time.Second

// Controller owns exactly one capture session and sequences it across
// multiple rooms without tearing down the sensing subsystem between rooms.
//
// The engine delivers results from its own goroutine; the controller is the
// single consumer of that channel, so every state mutation happens under the
// controller's lock regardless of which goroutine produced the data.
type Controller struct {
	mu         sync.Mutex
	engine     Engine
	builder    RoomBuilder
	resultWait time.Duration
	logf       func(format string, v ...interface{})

	state   State
	pending RawRoom
	rooms   []json.RawMessage

	// gen counts session closures. A build that started under an older
	// generation must not mutate the session it outlived.
	gen uint64
}

// NewController creates a session controller over the given engine and room
// construction capability.
func NewController(engine Engine, builder RoomBuilder) *Controller {
	return &Controller{
		engine:     engine,
		builder:    builder,
		resultWait: DefaultResultWait,
		logf:       monitoring.Prefixed("session"),
		state:      StateIdle,
	}
}

// SetResultWait overrides the bounded wait after a stop. Tests shorten it.
func (c *Controller) SetResultWait(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultWait = d
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasPendingRoom reports whether stopped room data is buffered and ready to
// process.
func (c *Controller) HasPendingRoom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Rooms returns copies of the geometries accumulated so far this session.
func (c *Controller) Rooms() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]json.RawMessage, len(c.rooms))
	for i, r := range c.rooms {
		cp := make(json.RawMessage, len(r))
		copy(cp, r)
		out[i] = cp
	}
	return out
}

// RoomCount returns the number of rooms accumulated this session.
func (c *Controller) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// Start begins capturing a room. Calling it while already scanning is a
// logged no-op. A session that was ended starts fresh; one with accumulated
// rooms continues on the same warm sensing context.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateScanning {
		c.logf("session already scanning, skipping start")
		return nil
	}

	if c.state == StateEnded {
		// fresh session after an explicit close
		c.rooms = nil
		c.pending = nil
	}

	if err := c.engine.Start(); err != nil {
		return fmt.Errorf("start capture engine: %w", err)
	}
	c.state = StateScanning
	c.logf("scanning room %d", len(c.rooms)+1)
	return nil
}

// Restart begins the next room on the same underlying session. It is
// equivalent to Start and exists to make call sites read like the workflow.
func (c *Controller) Restart() error {
	return c.Start()
}

// StopCurrentRoom signals the engine to stop the current room without
// tearing down the sensing context, then waits a bounded time for the raw
// room data. Calling it when not scanning is a logged no-op.
//
// Outcomes: data buffered as the pending room (nil error); engine-reported
// capture failure (discarded, back to idle, error returned once);
// ErrCaptureTimeout when the engine never calls back, in which case the
// caller may retry via another StopCurrentRoom or abandon the room by
// starting the next scan.
func (c *Controller) StopCurrentRoom(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateScanning:
		if err := c.engine.Stop(false); err != nil {
			c.state = StateIdle
			c.mu.Unlock()
			return fmt.Errorf("stop capture engine: %w", err)
		}
		c.state = StateAwaitingResult
	case StateAwaitingResult:
		if c.pending != nil {
			c.logf("stop requested but room data already buffered")
			c.mu.Unlock()
			return nil
		}
		// retry after a timeout: wait again without signalling the engine
	default:
		c.logf("stop requested while %s, ignoring", c.state)
		c.mu.Unlock()
		return nil
	}
	wait := c.resultWait
	c.mu.Unlock()

	return c.awaitResult(ctx, wait)
}

// awaitResult drains the engine's delivery channel for up to wait.
func (c *Controller) awaitResult(ctx context.Context, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-c.engine.Results():
		c.mu.Lock()
		defer c.mu.Unlock()
		if res.Err != nil {
			// hard capture failure: discard the room, session stays usable
			c.pending = nil
			c.state = StateIdle
			c.logf("capture ended with error: %v", res.Err)
			return fmt.Errorf("capture failed: %w", res.Err)
		}
		c.pending = res.Data
		c.logf("room data received (%d bytes)", len(res.Data))
		return nil

	case <-timer.C:
		c.logf("no room data received within %s", wait)
		return ErrCaptureTimeout

	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessPendingRoom consumes the buffered raw data by invoking the room
// construction capability, appending the built geometry to the session's
// accumulated list. Fails with ErrNoPendingRoomData when nothing is
// buffered; on build failure the buffer is kept so the caller can retry.
func (c *Controller) ProcessPendingRoom(ctx context.Context) error {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return ErrNoPendingRoomData
	}
	data := c.pending
	gen := c.gen
	c.state = StateProcessing
	c.mu.Unlock()

	geometry, err := c.builder.BuildRoom(ctx, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// the session was ended while the room was building; its state has
		// already been cleared and the late result must not resurrect it
		c.logf("discarding build result from closed session")
		return ErrSessionEnded
	}
	if err != nil {
		c.state = StateAwaitingResult
		return fmt.Errorf("build room: %w", err)
	}
	c.rooms = append(c.rooms, geometry)
	c.pending = nil
	c.state = StateIdle
	c.logf("room processed, total rooms: %d", len(c.rooms))
	return nil
}

// End closes the session from any state: tears down the sensing context and
// clears accumulated rooms and any pending buffer. Unprocessed buffered data
// is discarded.
func (c *Controller) End() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.engine.Stop(true); err != nil {
		c.logf("engine teardown: %v", err)
	}

	// drop any result still queued from a stop that was never consumed
	if ch := c.engine.Results(); ch != nil {
		select {
		case <-ch:
		default:
		}
	}

	c.logf("session ended, discarding %d rooms", len(c.rooms))
	c.rooms = nil
	c.pending = nil
	c.state = StateEnded
	c.gen++
}
