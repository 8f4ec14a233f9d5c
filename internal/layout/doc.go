// Package layout resolves a mission database tree into absolute bit
// positions.
//
// For every container and command, Resolve walks the base chain from the
// abstract root down to the leaf, concatenates each level's own entries
// and applies argument assignments as an override layer. A single
// left-to-right pass then places each entry relative to the container
// start, the previous entry or a named earlier entry.
//
// The result is a read-only Model keyed by the tree's handles. The tree
// itself is never modified, so it can be resolved again at any time.
//
// Resolution is all or nothing: the first structural error aborts the
// whole pass. Errors are reported in a fixed order regardless of
// parallelism.
package layout
