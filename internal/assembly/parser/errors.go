package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPE is returned when the file is not a PE image at all
	ErrNotPE = errors.New("not a PE image")
	// ErrNotManaged is returned for PE images without a CLI header
	ErrNotManaged = errors.New("no CLI header")
	// ErrBadMetadata is returned when the metadata streams or tables are malformed
	ErrBadMetadata = errors.New("malformed metadata")
	// ErrNoAssembly is returned for managed modules without an Assembly row (netmodules)
	ErrNoAssembly = errors.New("no assembly manifest")
)

// ParseError is a per-file, recoverable failure to read module metadata
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func badMetadata(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadMetadata, fmt.Sprintf(format, args...))
}
