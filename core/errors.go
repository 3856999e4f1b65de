// Package core holds the shared leaf types of the migration pipeline: the
// error taxonomy, pipeline event definitions, and tool configuration.
package core

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrorKind classifies every failure the pipeline can surface. Low-level
// causes (OS errno, JSON syntax errors) are wrapped into one of these kinds
// at the boundary where they occur; callers never inspect raw error codes.
type ErrorKind string

const (
	// ErrSchemaParse marks a malformed or unrecognized schema source. Fatal
	// to that one source only; other sources keep processing.
	ErrSchemaParse ErrorKind = "schema_parse"
	// ErrSnapshot marks a missing, corrupt or invalid snapshot. Fatal: the
	// tool cannot safely diff against an unknown baseline.
	ErrSnapshot ErrorKind = "snapshot"
	// ErrFilesystem marks a failed filesystem operation, classified into a
	// user-meaningful category.
	ErrFilesystem ErrorKind = "filesystem"
	// ErrGeneration marks any rendering failure not otherwise classified.
	ErrGeneration ErrorKind = "generation"
	// ErrScriptParse marks a migration script in which no snapshot could be
	// located when snapshot mode was requested. A script that parses but
	// yields zero operations is success, not this error.
	ErrScriptParse ErrorKind = "script_parse"
)

// FSCategory is the user-meaningful classification of a filesystem failure.
type FSCategory string

const (
	FSPermission FSCategory = "permission"
	FSSpace      FSCategory = "space"
	FSGeneric    FSCategory = "generic"
)

// Error is the structured error carried across the pipeline boundary. It
// holds enough context (path, operation, cause) to render an actionable
// message; the core itself never formats for a terminal.
type Error struct {
	Kind     ErrorKind
	Op       string
	Path     string
	Category FSCategory
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Category != "" && e.Category != FSGeneric {
		msg += fmt.Sprintf(" (%s)", e.Category)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewSchemaParseError wraps a schema source failure with its file path.
func NewSchemaParseError(path string, err error) error {
	return &Error{Kind: ErrSchemaParse, Op: "parse schema", Path: path, Err: err}
}

// NewSnapshotError wraps a snapshot load/save/validation failure.
func NewSnapshotError(op, path string, err error) error {
	return &Error{Kind: ErrSnapshot, Op: op, Path: path, Err: err}
}

// NewFilesystemError wraps an OS-level failure and classifies it by the
// underlying error code.
func NewFilesystemError(op, path string, err error) error {
	return &Error{Kind: ErrFilesystem, Op: op, Path: path, Category: classifyFS(err), Err: err}
}

// NewGenerationError wraps a rendering failure.
func NewGenerationError(op string, err error) error {
	return &Error{Kind: ErrGeneration, Op: op, Err: err}
}

// NewScriptParseError wraps a migration-script parse failure with its path.
func NewScriptParseError(path string, err error) error {
	return &Error{Kind: ErrScriptParse, Op: "parse migration script", Path: path, Err: err}
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Err
		e = nil
	}
	return false
}

func classifyFS(err error) FSCategory {
	switch {
	case errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM):
		return FSPermission
	case errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT):
		return FSSpace
	default:
		return FSGeneric
	}
}
