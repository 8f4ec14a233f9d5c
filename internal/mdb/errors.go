package mdb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConstruction is the category shared by every error raised while
// building a tree. Match it with errors.Is.
var ErrConstruction = errors.New("construction error")

// TypeError reports a malformed encoding, data type or literal value.
type TypeError struct {
	// QualifiedName identifies the offending node (type, parameter,
	// argument or command).
	QualifiedName string

	// Field names the attribute that failed validation, e.g. "range.max".
	Field string

	// Message is a human-readable description.
	Message string
}

func (e *TypeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("type error: %s: %s: %s", e.QualifiedName, e.Field, e.Message)
	}
	return fmt.Sprintf("type error: %s: %s", e.QualifiedName, e.Message)
}

func (e *TypeError) Is(target error) bool { return target == ErrConstruction }

// NameConflictError reports a second node registered under a qualified
// name that is already taken for the same kind, or by a system.
type NameConflictError struct {
	Kind          Kind
	QualifiedName string
	Existing      Kind // set when the name is held by another kind
}

func (e *NameConflictError) Error() string {
	if e.Existing != 0 {
		return fmt.Sprintf("name conflict: %s %s is already defined as a %s", e.Kind, e.QualifiedName, e.Existing)
	}
	return fmt.Sprintf("name conflict: %s %s is already defined", e.Kind, e.QualifiedName)
}

func (e *NameConflictError) Is(target error) bool { return target == ErrConstruction }

// InvalidNameError reports a name that cannot be used as a path segment.
type InvalidNameError struct {
	Kind   Kind
	Parent string
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s name %q under %s: %s", e.Kind, e.Name, e.Parent, e.Reason)
}

func (e *InvalidNameError) Is(target error) bool { return target == ErrConstruction }

// InheritanceCycleError reports a base link that would close a loop.
// Chain lists the qualified names along the loop, starting and ending
// with the same node.
type InheritanceCycleError struct {
	Kind  Kind
	Chain []string
}

func (e *InheritanceCycleError) Error() string {
	return fmt.Sprintf("inheritance cycle: %s %s", e.Kind, strings.Join(e.Chain, " → "))
}

func (e *InheritanceCycleError) Is(target error) bool { return target == ErrConstruction }

// AssignmentError reports an argument assignment that names no ancestor
// argument, or whose literal does not fit the argument's type. Err holds
// the underlying TypeError in the latter case.
type AssignmentError struct {
	Command  string
	Argument string
	Message  string
	Err      error
}

func (e *AssignmentError) Error() string {
	msg := fmt.Sprintf("assignment error: %s: argument %q: %s", e.Command, e.Argument, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AssignmentError) Unwrap() error { return e.Err }

func (e *AssignmentError) Is(target error) bool { return target == ErrConstruction }

// UnknownHandleError reports a handle that does not address a node.
type UnknownHandleError struct {
	Kind   Kind
	Handle int
	Field  string
}

func (e *UnknownHandleError) Error() string {
	return fmt.Sprintf("unknown %s handle %d in %s", e.Kind, e.Handle, e.Field)
}

func (e *UnknownHandleError) Is(target error) bool { return target == ErrConstruction }

// Warning is a non-fatal finding recorded on the tree.
type Warning struct {
	QualifiedName string
	Message       string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.QualifiedName, w.Message)
}

// IsTypeError returns true if err is or wraps a TypeError.
func IsTypeError(err error) bool {
	var e *TypeError
	return errors.As(err, &e)
}

// IsNameConflict returns true if err is or wraps a NameConflictError.
func IsNameConflict(err error) bool {
	var e *NameConflictError
	return errors.As(err, &e)
}

// IsInheritanceCycle returns true if err is or wraps an InheritanceCycleError.
func IsInheritanceCycle(err error) bool {
	var e *InheritanceCycleError
	return errors.As(err, &e)
}

// IsAssignmentError returns true if err is or wraps an AssignmentError.
func IsAssignmentError(err error) bool {
	var e *AssignmentError
	return errors.As(err, &e)
}
