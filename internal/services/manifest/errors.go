package manifest

import (
	"fmt"
)

// MalformedManifestError means the document is not well-formed XML or lacks a required element or attribute.
type MalformedManifestError struct {
	Path string
	Err  error
}

func (e *MalformedManifestError) Error() string {
	return fmt.Sprintf("malformed manifest %s: %v", e.Path, e.Err)
}

func (e *MalformedManifestError) Unwrap() error { return e.Err }

// CoercionError means a manifest value could not be converted to its column type.
type CoercionError struct {
	Path  string
	Field string // persisted column name
	Value string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("manifest %s: invalid %s %q: %v", e.Path, e.Field, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }
