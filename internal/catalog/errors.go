package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty         = errors.New("catalog has no templates")
	ErrMissingColumn = errors.New("missing required column")
	ErrDuplicateID   = errors.New("duplicate id")
	ErrInvalidRow    = errors.New("invalid row")
)

// LoadError is returned when a catalog source cannot be turned into a Catalog.
// It is fatal at startup.
type LoadError struct {
	Source string
	Table  string
	Row    int // 1-based data row, 0 when the error is not tied to a row
	Err    error
}

func (e *LoadError) Error() string {
	where := e.Source
	if e.Table != "" {
		where += ": " + e.Table
	}
	if e.Row > 0 {
		where += fmt.Sprintf(" row %d", e.Row)
	}
	return fmt.Sprintf("catalog load %s: %v", where, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup of an id the catalog does not hold.
type NotFoundError struct {
	Kind string // "template" or "selector"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
