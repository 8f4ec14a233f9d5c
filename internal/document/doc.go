// Package document turns a resolved model into a language-agnostic
// structural tree and renders it as canonical JSON or deterministic CBOR.
//
// The tree mirrors the system hierarchy. Each system lists its types,
// parameters, containers, commands and algorithms in declaration order.
// Containers and commands carry only the entries declared at their own
// level, annotated with resolved bit positions, plus a reference to
// their base. Inheritance is preserved rather than flattened.
//
// Rendering is a pure function of the model: the same tree always
// produces the same bytes.
package document
