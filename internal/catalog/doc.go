// Package catalog exports resolved layouts to a SQLite database so that
// ground tools can query entry positions without parsing XTCE.
//
// Tables:
//   - exports: one row per exported document, keyed by its content id
//   - systems, data_types, parameters: the tree's named nodes
//   - layouts: containers and commands with size and inheritance chain
//   - placements: the effective entry list of every layout
//
// Every table is scoped by document_id. Exports are idempotent: writing
// a model whose document id is already present changes nothing.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Queries order rows by ordinal or qualified name so results are stable.
package catalog
