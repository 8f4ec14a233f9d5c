// Package mdb holds the in-memory mission database model: encodings, data
// types, parameters, containers, commands, algorithms and the system tree
// that owns them.
//
// The tree is an arena. Every node lives in a slice owned by Tree and is
// addressed by a typed 1-based handle (TypeID, ParameterID, ...). The zero
// handle means "none". Base links between containers or commands are
// handles too, so inheritance is an explicit graph rather than a chain of
// pointers.
//
// Construction validates eagerly. A malformed type, a duplicate name or a
// cyclic base link is refused with a construction error and never enters
// the tree. Layout is computed elsewhere (see package layout) and never
// mutates the tree.
//
// Key design constraints:
//   - DataTypes are shared by handle, never copied into entities
//   - Qualified names are unique per node kind across the whole tree
//   - Declaration order is preserved everywhere for deterministic output
package mdb
