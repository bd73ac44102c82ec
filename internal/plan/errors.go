package plan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidGeometry reports a room geometry file that does not decode.
	ErrInvalidGeometry = errors.New("room geometry is not valid")

	// ErrReadOnlyProject rejects scan/merge/import mutations on projects not
	// scanned in-app.
	ErrReadOnlyProject = errors.New("project is read-only: not scanned in app")
)

// ItemFailure is one failed item inside a batch operation.
type ItemFailure struct {
	Name string
	Err  error
}

// BatchError aggregates per-item failures from a batch operation in which
// other items succeeded. It is reported once, with per-item detail, instead
// of aborting the batch.
type BatchError struct {
	Succeeded int
	Failures  []ItemFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, f.Err))
	}
	return fmt.Sprintf("%d of %d items failed: %s",
		len(e.Failures), e.Succeeded+len(e.Failures), strings.Join(parts, "; "))
}
