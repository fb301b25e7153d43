package edit

import (
	"errors"
	"fmt"
)

// ContentMismatchError reports that the target line no longer matches the
// line captured at scan time. Nothing was written.
type ContentMismatchError struct {
	Path     string
	Line     int
	Expected string
	Actual   string
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("content mismatch at %s:%d: expected %q, found %q", e.Path, e.Line, e.Expected, e.Actual)
}

// IsContentMismatch reports whether err is (or wraps) a ContentMismatchError.
func IsContentMismatch(err error) bool {
	var cm *ContentMismatchError
	return errors.As(err, &cm)
}
