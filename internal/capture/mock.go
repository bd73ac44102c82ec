package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockEngine implements Engine with configurable behaviour. It backs the
// -dev mode of the daemon as well as the session controller tests.
type MockEngine struct {
	mu sync.Mutex

	// FixtureData is the raw room payload delivered after each Stop when no
	// explicit result is queued.
	FixtureData RawRoom

	// NextErr, when set, is delivered (once) as the result of the next Stop
	// instead of data.
	NextErr error

	// SuppressDelivery drops results entirely, simulating an engine that
	// never calls back after a stop.
	SuppressDelivery bool

	// ResultDelay postpones delivery after Stop.
	ResultDelay time.Duration

	// StartErr is returned by Start if set.
	StartErr error

	// Call counters for test assertions.
	StartCalls    int
	StopCalls     int
	TeardownCalls int
	CloseCalls    int

	results chan Result
}

// NewMockEngine creates a mock engine with a minimal fixture payload.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		FixtureData: RawRoom(`{"walls":4,"openings":1}`),
		results:     make(chan Result, 4),
	}
}

// Start records the call.
func (e *MockEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StartCalls++
	return e.StartErr
}

// Stop records the call and, for non-teardown stops, schedules delivery of
// the next result the way real engines call back from their own goroutine.
func (e *MockEngine) Stop(teardown bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if teardown {
		e.TeardownCalls++
		return nil
	}
	e.StopCalls++

	if e.SuppressDelivery {
		return nil
	}

	res := Result{Data: e.FixtureData}
	if e.NextErr != nil {
		res = Result{Err: e.NextErr}
		e.NextErr = nil
	}

	delay := e.ResultDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		e.results <- res
	}()
	return nil
}

// Results returns the delivery channel.
func (e *MockEngine) Results() <-chan Result { return e.results }

// Close records the call.
func (e *MockEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCalls++
	return nil
}

// Deliver pushes a result directly, bypassing Stop. Tests use it to exercise
// out-of-band callbacks.
func (e *MockEngine) Deliver(res Result) {
	e.results <- res
}

// SimBuilder is the RoomBuilder used in dev mode and tests: it validates
// that the raw payload decodes as JSON and passes it through as the room
// geometry.
type SimBuilder struct {
	// BuildErr, when set, is returned by every BuildRoom call.
	BuildErr error
}

// BuildRoom validates and returns the payload.
func (b *SimBuilder) BuildRoom(ctx context.Context, data RawRoom) (json.RawMessage, error) {
	if b.BuildErr != nil {
		return nil, b.BuildErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("raw room data is not valid JSON")
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out, nil
}
