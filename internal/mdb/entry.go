package mdb

import (
	"fmt"
	"math/bits"
)

// EntryKind identifies the Entry variant.
type EntryKind int

const (
	ParameterEntryKind EntryKind = iota + 1
	ArgumentEntryKind
	FixedValueEntryKind
	ContainerEntryKind
)

func (k EntryKind) String() string {
	switch k {
	case ParameterEntryKind:
		return "parameter"
	case ArgumentEntryKind:
		return "argument"
	case FixedValueEntryKind:
		return "fixed"
	case ContainerEntryKind:
		return "container"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// Reference is the anchor of an entry location.
type Reference int

const (
	// PreviousEntry anchors at the end of the previous entry.
	PreviousEntry Reference = iota
	// ContainerStart anchors at bit 0 of the container.
	ContainerStart
	// NamedEntry anchors at the end of an earlier entry named in
	// Location.Entry.
	NamedEntry
)

func (r Reference) String() string {
	switch r {
	case ContainerStart:
		return "container_start"
	case NamedEntry:
		return "named_entry"
	default:
		return "previous_entry"
	}
}

// Location is the placement rule of an entry. The zero Location places
// an entry right after the previous one.
type Location struct {
	Reference  Reference
	Entry      string
	OffsetBits int64
}

// AfterPrevious places an entry offset bits past the previous entry.
func AfterPrevious(offset int64) Location {
	return Location{Reference: PreviousEntry, OffsetBits: offset}
}

// FromStart places an entry offset bits from the container start.
func FromStart(offset int64) Location {
	return Location{Reference: ContainerStart, OffsetBits: offset}
}

// After places an entry offset bits past the end of the named entry.
func After(entry string, offset int64) Location {
	return Location{Reference: NamedEntry, Entry: entry, OffsetBits: offset}
}

// Entry places one parameter, argument, nested container or constant
// inside a container or command.
type Entry struct {
	Kind      EntryKind
	Parameter ParameterID
	Container ContainerID
	Argument  string

	// Name labels a fixed value entry. Optional.
	Name  string
	Value []byte // fixed value payload, right-aligned in Bits
	Bits  int64

	Location         Location
	ShortDescription string
}

// ParameterEntry places a parameter after the previous entry.
func ParameterEntry(p ParameterID) Entry {
	return Entry{Kind: ParameterEntryKind, Parameter: p}
}

// ArgumentEntry places a command argument after the previous entry. The
// argument may be declared by the command or any of its ancestors.
func ArgumentEntry(name string) Entry {
	return Entry{Kind: ArgumentEntryKind, Argument: name}
}

// FixedValueEntry places a constant of the given width.
func FixedValueEntry(name string, value []byte, bits int64) Entry {
	return Entry{Kind: FixedValueEntryKind, Name: name, Value: append([]byte(nil), value...), Bits: bits}
}

// ContainerEntry nests another container.
func ContainerEntry(c ContainerID) Entry {
	return Entry{Kind: ContainerEntryKind, Container: c}
}

// At returns a copy of e using loc.
func (e Entry) At(loc Location) Entry {
	e.Location = loc
	return e
}

// EntryName returns the name other entries use to refer to e, the entry
// at index in the container or command at level of an inheritance chain.
// Fixed values without a name are addressed as "#<level>.<index>".
func (t *Tree) EntryName(e Entry, level, index int) string {
	switch e.Kind {
	case ParameterEntryKind:
		if p := t.Parameter(e.Parameter); p != nil {
			return p.Name
		}
	case ArgumentEntryKind:
		return e.Argument
	case ContainerEntryKind:
		if c := t.Container(e.Container); c != nil {
			return c.Name
		}
	case FixedValueEntryKind:
		if e.Name != "" {
			return e.Name
		}
	}
	return fmt.Sprintf("#%d.%d", level, index)
}

// checkEntry validates the parts of an entry that do not depend on the
// inheritance chain.
func (t *Tree) checkEntry(owner string, i int, e Entry, commandEntry bool) error {
	fail := func(format string, args ...any) error {
		return &TypeError{QualifiedName: owner, Field: fmt.Sprintf("entries[%d]", i), Message: fmt.Sprintf(format, args...)}
	}
	switch e.Kind {
	case ParameterEntryKind:
		if commandEntry {
			return fail("commands cannot place parameters")
		}
		if t.Parameter(e.Parameter) == nil {
			return fail("unknown parameter handle %d", e.Parameter)
		}
	case ArgumentEntryKind:
		if !commandEntry {
			return fail("containers cannot place arguments")
		}
		if e.Argument == "" {
			return fail("argument name is required")
		}
	case FixedValueEntryKind:
		if e.Bits <= 0 {
			return fail("fixed value width must be greater than zero")
		}
		if len(e.Value) == 0 {
			return fail("fixed value payload is empty")
		}
		if n := significantBits(e.Value); n > e.Bits {
			return fail("value %x needs %d bits, entry has %d", e.Value, n, e.Bits)
		}
		if e.Name != "" {
			if reason := checkName(e.Name); reason != "" {
				return fail("fixed value name %q: %s", e.Name, reason)
			}
		}
	case ContainerEntryKind:
		if commandEntry {
			return fail("commands cannot nest containers")
		}
		if t.Container(e.Container) == nil {
			return fail("unknown container handle %d", e.Container)
		}
	default:
		return fail("entry kind is required")
	}
	switch e.Location.Reference {
	case PreviousEntry, ContainerStart:
	case NamedEntry:
		if e.Location.Entry == "" {
			return fail("named entry location needs an entry name")
		}
	default:
		return fail("unknown location reference %d", e.Location.Reference)
	}
	return nil
}

// significantBits is the width of b read as a big-endian unsigned integer.
func significantBits(b []byte) int64 {
	for i, c := range b {
		if c != 0 {
			return int64(len(b)-i-1)*8 + int64(bits.Len8(c))
		}
	}
	return 0
}
