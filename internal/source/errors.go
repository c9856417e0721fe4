package source

import (
	"errors"
	"fmt"
	"strings"
)

// UnreadableError means a source file is missing, unopenable, empty, or a
// row in it could not be parsed. Always fatal to the run: downstream
// artifacts must never be published from a partially read source.
type UnreadableError struct {
	Source Source
	Path   string
	Err    error
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("source %s unreadable (%s): %v", e.Source, e.Path, e.Err)
}

func (e *UnreadableError) Unwrap() error { return e.Err }

// SchemaError means a source file's header does not match the expected
// schema. Missing and Unexpected are sorted for stable output.
type SchemaError struct {
	Source     Source
	Path       string
	Missing    []string
	Unexpected []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected columns: "+strings.Join(e.Unexpected, ", "))
	}
	return fmt.Sprintf("source %s schema mismatch (%s): %s", e.Source, e.Path, strings.Join(parts, "; "))
}

// IsUnreadable reports whether err is (or wraps) an UnreadableError.
func IsUnreadable(err error) bool {
	var ue *UnreadableError
	return errors.As(err, &ue)
}

// IsSchemaMismatch reports whether err is (or wraps) a SchemaError.
func IsSchemaMismatch(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
