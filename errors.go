package zarr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when addressed metadata or a chunk is absent.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a network or connection fault while reading.
	ErrTransient = errors.New("transient error")
	// ErrWrite marks a destination that refused or failed a write.
	ErrWrite = errors.New("write error")
	// ErrConsistency marks data that fails a consistency check, eg. a
	// downsampled level introducing labels absent from the base.
	ErrConsistency = errors.New("consistency error")
	// ErrPrecondition is returned when a destination already exists but a
	// fresh create was required, or a mode is missing a needed capability.
	ErrPrecondition = errors.New("precondition failed")
)

// ChunkError reports the chunk coordinate at which a run stopped.
type ChunkError struct {
	Op    string
	Coord ChunkCoord
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s chunk %s: %v", e.Op, e.Coord, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// LevelError reports the pyramid level at which a build stopped.
type LevelError struct {
	Level int
	Path  string
	Err   error
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("level %d (%s): %v", e.Level, e.Path, e.Err)
}

func (e *LevelError) Unwrap() error { return e.Err }

// classify makes sure err carries kind, leaving errors that already name
// one of the taxonomy sentinels untouched.
func classify(err, kind error) error {
	if err == nil {
		return nil
	}
	for _, k := range []error{ErrNotFound, ErrTransient, ErrWrite, ErrConsistency, ErrPrecondition} {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", kind, err)
}
