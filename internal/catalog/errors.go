package catalog

import "errors"

// Sentinel errors shared by the catalog, directory, ingest and HTTP layers.
// Match them with errors.Is; callers wrap them with context using %w.
var (
	// ErrValidation marks a request rejected before any side effect.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent gallery, item or file.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks a filesystem write, move or remove failure.
	ErrStorage = errors.New("storage failure")
	// ErrCorrupt marks an unparsable catalog document.
	ErrCorrupt = errors.New("catalog is corrupt")
	// ErrAlreadyExists marks a gallery id that is already taken.
	ErrAlreadyExists = errors.New("already exists")
)
