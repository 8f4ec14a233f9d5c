package layout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResolution is the category shared by every error raised by Resolve.
// Match it with errors.Is.
var ErrResolution = errors.New("resolution error")

// Range is a named bit range [Start, End). Open is set for dynamic
// entries whose end is only known in the packet.
type Range struct {
	Entry string
	Start int64
	End   int64
	Open  bool
}

func (r Range) String() string {
	if r.Open {
		return fmt.Sprintf("%s [%d, ...)", r.Entry, r.Start)
	}
	return fmt.Sprintf("%s [%d, %d)", r.Entry, r.Start, r.End)
}

// DanglingReferenceError reports a named-entry location or a dynamic
// array length that points at an entry not placed earlier in the
// effective entry list.
type DanglingReferenceError struct {
	Container string
	Entry     string
	Reference string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("dangling reference: %s: entry %s refers to %q, which is not placed before it",
		e.Container, e.Entry, e.Reference)
}

func (e *DanglingReferenceError) Is(target error) bool { return target == ErrResolution }

// OverlapError reports two entries whose bit ranges intersect.
type OverlapError struct {
	Container string
	First     Range
	Second    Range
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlap: %s: %s collides with %s", e.Container, e.First, e.Second)
}

func (e *OverlapError) Is(target error) bool { return target == ErrResolution }

// DynamicPlacementError reports an entry whose position cannot be known
// because it follows, or is anchored to, a dynamically sized entry.
type DynamicPlacementError struct {
	Container string
	Entry     string
	Dynamic   string
	Message   string
}

func (e *DynamicPlacementError) Error() string {
	return fmt.Sprintf("dynamic placement: %s: entry %s after dynamic entry %s: %s",
		e.Container, e.Entry, e.Dynamic, e.Message)
}

func (e *DynamicPlacementError) Is(target error) bool { return target == ErrResolution }

// OffsetError reports an entry that would start before bit 0.
type OffsetError struct {
	Container string
	Entry     string
	StartBit  int64
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("offset: %s: entry %s would start at bit %d", e.Container, e.Entry, e.StartBit)
}

func (e *OffsetError) Is(target error) bool { return target == ErrResolution }

// UnassignedArgumentError reports a concrete command that leaves an
// argument of an abstract ancestor without assignment or default.
type UnassignedArgumentError struct {
	Command    string
	Argument   string
	DeclaredBy string
}

func (e *UnassignedArgumentError) Error() string {
	return fmt.Sprintf("unassigned argument: %s: argument %q of abstract %s has no assignment or default",
		e.Command, e.Argument, e.DeclaredBy)
}

func (e *UnassignedArgumentError) Is(target error) bool { return target == ErrResolution }

// SizeMismatchError reports a declared size smaller than the computed one.
type SizeMismatchError struct {
	Container string
	Declared  int64
	Computed  int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: %s: declared %d bits but entries need %d", e.Container, e.Declared, e.Computed)
}

func (e *SizeMismatchError) Is(target error) bool { return target == ErrResolution }

// UnresolvedReferenceError reports a reference string or argument name
// that does not resolve against the tree.
type UnresolvedReferenceError struct {
	From      string
	Field     string
	Kind      string
	Reference string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference: %s: %s: no %s %q", e.From, e.Field, e.Kind, e.Reference)
}

func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrResolution }

// LengthEntryError reports a dynamic array whose length entry is placed
// but does not hold an integer.
type LengthEntryError struct {
	Container string
	Entry     string
	Length    string
	Found     string // kind of the length entry or of its type
}

func (e *LengthEntryError) Error() string {
	return fmt.Sprintf("length entry: %s: array %s takes its length from %s, which is a %s, not an integer",
		e.Container, e.Entry, e.Length, e.Found)
}

func (e *LengthEntryError) Is(target error) bool { return target == ErrResolution }

// ReferenceCycleError reports containers that nest each other.
type ReferenceCycleError struct {
	Chain []string
}

func (e *ReferenceCycleError) Error() string {
	return fmt.Sprintf("reference cycle: %s", strings.Join(e.Chain, " → "))
}

func (e *ReferenceCycleError) Is(target error) bool { return target == ErrResolution }

// IsOverlap returns true if err is or wraps an OverlapError.
func IsOverlap(err error) bool {
	var e *OverlapError
	return errors.As(err, &e)
}

// IsDanglingReference returns true if err is or wraps a DanglingReferenceError.
func IsDanglingReference(err error) bool {
	var e *DanglingReferenceError
	return errors.As(err, &e)
}

// IsDynamicPlacement returns true if err is or wraps a DynamicPlacementError.
func IsDynamicPlacement(err error) bool {
	var e *DynamicPlacementError
	return errors.As(err, &e)
}

// IsUnassignedArgument returns true if err is or wraps an UnassignedArgumentError.
func IsUnassignedArgument(err error) bool {
	var e *UnassignedArgumentError
	return errors.As(err, &e)
}

// IsLengthEntry returns true if err is or wraps a LengthEntryError.
func IsLengthEntry(err error) bool {
	var e *LengthEntryError
	return errors.As(err, &e)
}
