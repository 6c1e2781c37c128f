package bookcompiler

import (
	"context"
	"errors"
	"fmt"
)

// Fatal errors abort the whole compile before any bytes are produced.
var (
	ErrMissingCover    = errors.New("bookcompiler: missing front cover")
	ErrDuplicateCover  = errors.New("bookcompiler: duplicate cover")
	ErrInvalidPage     = errors.New("bookcompiler: invalid page")
	ErrInvalidColor    = errors.New("bookcompiler: invalid color")
	ErrInvalidGeometry = errors.New("bookcompiler: invalid geometry")
	ErrRender          = errors.New("bookcompiler: render failed")
)

// Non-fatal errors are collected as per-page diagnostics.
var (
	ErrFetchFailed       = errors.New("bookcompiler: image fetch failed")
	ErrUnsupportedFormat = errors.New("bookcompiler: unsupported image format")
)

// Diagnostic is a non-fatal problem found while compiling one page
type Diagnostic struct {
	PageID string
	Index  int
	Label  string
	Err    error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("page %d (%s): %v", d.Index, d.PageID, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Kind returns the stable name of the diagnostic's error class
func (d Diagnostic) Kind() string {
	return ErrorKind(d.Err)
}

// ErrorKind maps an error to a stable, machine-readable name.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCover):
		return "missing_cover"
	case errors.Is(err, ErrDuplicateCover):
		return "duplicate_cover"
	case errors.Is(err, ErrInvalidPage):
		return "invalid_page"
	case errors.Is(err, ErrInvalidColor):
		return "invalid_color"
	case errors.Is(err, ErrInvalidGeometry):
		return "invalid_geometry"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrRender):
		return "render_failed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}
	return "internal"
}

// IsFatal reports whether err aborts a compile rather than being collected
// as a diagnostic.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrFetchFailed) && !errors.Is(err, ErrUnsupportedFormat)
}
